package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNoInput          = errors.New("input is not available")
	ErrUnknownDirective = errors.New("unknown directive")
	ErrInvalidConfig    = errors.New("invalid engine configuration")
)

// ExecError is an error raised by user code. Name is the error kind reported
// as ename, Value the message.
type ExecError struct {
	Name      string
	Value     string
	Traceback []string
}

func (e *ExecError) Error() string {
	return e.Name + ": " + e.Value
}

// AsExecError returns err as an *ExecError, classifying foreign errors under
// a generic kind.
func AsExecError(err error) *ExecError {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr
	}
	switch {
	case errors.Is(err, ErrNoInput):
		return &ExecError{Name: "StdinNotImplementedError", Value: err.Error()}
	case errors.Is(err, ErrUnknownDirective):
		return &ExecError{Name: "UsageError", Value: err.Error()}
	default:
		return &ExecError{Name: "Error", Value: err.Error()}
	}
}

// inline formats an evaluation failure for user_variables and
// user_expressions.
func inline(err error) string {
	e := AsExecError(err)
	return fmt.Sprintf("[ERROR] %s: %s", e.Name, e.Value)
}
