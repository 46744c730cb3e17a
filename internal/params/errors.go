package params

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// MissingParameterError reports a required parameter that was not supplied.
type MissingParameterError struct {
	Field string
}

func (e *MissingParameterError) Error() string {
	return "Missing required parameter: " + e.Field
}

// MalformedParameterError reports a parameter that was sent but could not be
// decoded or parsed as its type.
type MalformedParameterError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedParameterError) Error() string {
	var esc url.EscapeError
	if errors.As(e.Err, &esc) {
		return fmt.Sprintf("Parameter %s is not validly percent-encoded, got %q", e.Field, e.Value)
	}
	if errors.Is(e.Err, strconv.ErrRange) {
		return fmt.Sprintf("Parameter %s is out of range, got %q", e.Field, e.Value)
	}
	var num *strconv.NumError
	if errors.As(e.Err, &num) {
		return fmt.Sprintf("Parameter %s must be an integer, got %q", e.Field, e.Value)
	}
	return fmt.Sprintf("Parameter %s is malformed, got %q", e.Field, e.Value)
}

func (e *MalformedParameterError) Unwrap() error {
	return e.Err
}

// ValidationError reports a parsed parameter that breaks a range or format rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FieldOf returns the offending field if err is a parameter error.
func FieldOf(err error) (string, bool) {
	var missing *MissingParameterError
	var malformed *MalformedParameterError
	var invalid *ValidationError
	switch {
	case errors.As(err, &missing):
		return missing.Field, true
	case errors.As(err, &malformed):
		return malformed.Field, true
	case errors.As(err, &invalid):
		return invalid.Field, true
	}
	return "", false
}
