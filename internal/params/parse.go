// Package params turns raw query parameters into a validated engine request
// and encodes it into the engine's pipe-delimited input format.
package params

import (
	"net/url"
	"strconv"
	"strings"
)

// BoardSize is the number of cells in a board bitstring (10 columns x 20 rows).
const BoardSize = 200

// Query parameter names.
const (
	FieldBoard              = "board"
	FieldSecondBoard        = "secondBoard"
	FieldLevel              = "level"
	FieldLines              = "lines"
	FieldCurrentPiece       = "currentPiece"
	FieldNextPiece          = "nextPiece"
	FieldInputFrameTimeline = "inputFrameTimeline"
	FieldPlayoutCount       = "playoutCount"
	FieldPlayoutLength      = "playoutLength"
	FieldPruningBreadth     = "pruningBreadth"
)

// Defaults for optional parameters.
const (
	DefaultLevel              = 18
	DefaultLines              = 0
	DefaultPiece              = -1
	DefaultInputFrameTimeline = "X." // 30hz
	DefaultPlayoutCount       = 343  // depth 3
	DefaultPlayoutLength      = 3
	DefaultPruningBreadth     = 25

	MinLevel = 18
	MinPiece = -1
	MaxPiece = 6
)

// Params is a validated engine request. SecondBoard is empty unless the
// request was parsed in two-board mode.
type Params struct {
	Board              string
	SecondBoard        string
	Level              int
	Lines              int
	CurrentPiece       int
	NextPiece          int
	InputFrameTimeline string
	PlayoutCount       int
	PlayoutLength      int
	PruningBreadth     int
}

// ParseQuery decodes a raw query string and validates it like Parse. A pair
// that fails to decode is reported as a *MalformedParameterError for its key
// rather than treated as absent.
func ParseQuery(rawQuery string, requireSecondBoard bool) (*Params, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, queryError(rawQuery, err)
	}
	return Parse(values, requireSecondBoard)
}

// queryError attributes a url.ParseQuery failure to the first pair that
// cannot be decoded.
func queryError(rawQuery string, err error) error {
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		if strings.Contains(pair, ";") {
			return &MalformedParameterError{Field: rawKey, Value: rawValue, Err: err}
		}
		key, kerr := url.QueryUnescape(rawKey)
		if kerr != nil {
			return &MalformedParameterError{Field: rawKey, Value: rawValue, Err: kerr}
		}
		if _, verr := url.QueryUnescape(rawValue); verr != nil {
			return &MalformedParameterError{Field: key, Value: rawValue, Err: verr}
		}
	}
	return &MalformedParameterError{Field: "query", Value: rawQuery, Err: err}
}

// Parse reads and validates request parameters. When requireSecondBoard is
// set, secondBoard must be present and valid; otherwise it is ignored.
// Parameters are read in declaration order, then boards are checked, then
// ranges, and the first failure is returned.
func Parse(values url.Values, requireSecondBoard bool) (*Params, error) {
	var (
		p   Params
		err error
	)

	if p.Board, err = stringParam(values, FieldBoard, nil); err != nil {
		return nil, err
	}
	if p.Level, err = intParam(values, FieldLevel, DefaultLevel); err != nil {
		return nil, err
	}
	if p.Lines, err = intParam(values, FieldLines, DefaultLines); err != nil {
		return nil, err
	}
	if p.CurrentPiece, err = intParam(values, FieldCurrentPiece, DefaultPiece); err != nil {
		return nil, err
	}
	if p.NextPiece, err = intParam(values, FieldNextPiece, DefaultPiece); err != nil {
		return nil, err
	}
	timeline := DefaultInputFrameTimeline
	if p.InputFrameTimeline, err = stringParam(values, FieldInputFrameTimeline, &timeline); err != nil {
		return nil, err
	}
	if p.PlayoutCount, err = intParam(values, FieldPlayoutCount, DefaultPlayoutCount); err != nil {
		return nil, err
	}
	if p.PlayoutLength, err = intParam(values, FieldPlayoutLength, DefaultPlayoutLength); err != nil {
		return nil, err
	}
	if p.PruningBreadth, err = intParam(values, FieldPruningBreadth, DefaultPruningBreadth); err != nil {
		return nil, err
	}

	if err := checkBoard(FieldBoard, "Board string", p.Board); err != nil {
		return nil, err
	}

	if requireSecondBoard {
		if p.SecondBoard, err = stringParam(values, FieldSecondBoard, nil); err != nil {
			return nil, err
		}
		if err := checkBoard(FieldSecondBoard, "Second board string", p.SecondBoard); err != nil {
			return nil, err
		}
	}

	if p.CurrentPiece < MinPiece || p.CurrentPiece > MaxPiece {
		return nil, invalid(FieldCurrentPiece, "Current piece must be between -1 and 6")
	}
	if p.NextPiece < MinPiece || p.NextPiece > MaxPiece {
		return nil, invalid(FieldNextPiece, "Next piece must be between -1 and 6")
	}
	for i := 0; i < len(p.InputFrameTimeline); i++ {
		if c := p.InputFrameTimeline[i]; c != 'X' && c != '.' {
			return nil, invalid(FieldInputFrameTimeline, "inputFrameTimeline must only contain 'X' and '.'")
		}
	}
	if p.Level < MinLevel {
		return nil, invalid(FieldLevel, "Level must be 18 or higher")
	}
	if p.Lines < 0 {
		return nil, invalid(FieldLines, "Lines must be 0 or higher")
	}
	if p.PlayoutCount < 0 {
		return nil, invalid(FieldPlayoutCount, "Playout count must be 0 or higher")
	}
	if p.PlayoutLength < 0 {
		return nil, invalid(FieldPlayoutLength, "Playout length must be 0 or higher")
	}
	if p.PruningBreadth < 0 {
		return nil, invalid(FieldPruningBreadth, "Pruning breadth must be 0 or higher")
	}

	return &p, nil
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func checkBoard(field, label, board string) error {
	if len(board) != BoardSize {
		return invalid(field, label+" must be 200 characters long")
	}
	for i := 0; i < len(board); i++ {
		if c := board[i]; c != '0' && c != '1' {
			return invalid(field, label+" must only contain 0s and 1s")
		}
	}
	return nil
}

// lookup returns the first value for key and whether the key was supplied.
func lookup(values url.Values, key string) (string, bool) {
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// stringParam returns the value of key, or *def when absent. A nil def makes
// the parameter required.
func stringParam(values url.Values, key string, def *string) (string, error) {
	v, ok := lookup(values, key)
	if !ok {
		if def != nil {
			return *def, nil
		}
		return "", &MissingParameterError{Field: key}
	}
	return v, nil
}

func intParam(values url.Values, key string, def int) (int, error) {
	v, ok := lookup(values, key)
	if !ok {
		return def, nil
	}
	// The engine reads 32-bit ints.
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, &MalformedParameterError{Field: key, Value: v, Err: err}
	}
	return int(n), nil
}
