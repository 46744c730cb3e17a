package params

import (
	"strconv"
	"strings"
)

// Encode renders p in the engine's input format:
//
//	board|[secondBoard|]level|lines|currentPiece|nextPiece|inputFrameTimeline|playoutCount|playoutLength|pruningBreadth|
//
// The second board segment is written only when SecondBoard is non-empty.
func (p *Params) Encode() string {
	var b strings.Builder
	b.Grow(2*BoardSize + 64)

	field := func(s string) {
		b.WriteString(s)
		b.WriteByte('|')
	}

	field(p.Board)
	if p.SecondBoard != "" {
		field(p.SecondBoard)
	}
	field(strconv.Itoa(p.Level))
	field(strconv.Itoa(p.Lines))
	field(strconv.Itoa(p.CurrentPiece))
	field(strconv.Itoa(p.NextPiece))
	field(p.InputFrameTimeline)
	field(strconv.Itoa(p.PlayoutCount))
	field(strconv.Itoa(p.PlayoutLength))
	field(strconv.Itoa(p.PruningBreadth))

	return b.String()
}
