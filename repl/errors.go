package repl

import (
	"context"
	"errors"
	"fmt"
	"go/scanner"
	"regexp"
	"strings"

	"github.com/traefik/yaegi/interp"

	"github.com/tailored-agentic-units/evalkernel/engine"
)

var position = regexp.MustCompile(`^(\S+:)?\d+:\d+: `)

// classify turns interpreter errors into engine errors. Cancellation passes
// through untouched so the engine reports an abort.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var p interp.Panic
	if errors.As(err, &p) {
		if cause, ok := p.Value.(error); ok {
			if errors.Is(cause, engine.ErrNoInput) || errors.Is(cause, context.Canceled) {
				return cause
			}
		}
		value := fmt.Sprint(p.Value)
		return &engine.ExecError{Name: "Panic", Value: value, Traceback: []string{"panic: " + value}}
	}

	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		traceback := make([]string, len(list))
		for i, e := range list {
			traceback[i] = e.Error()
		}
		return &engine.ExecError{Name: "SyntaxError", Value: list[0].Msg, Traceback: traceback}
	}

	msg := err.Error()
	name := "CompileError"
	switch {
	case strings.Contains(msg, "undefined:"):
		name = "NameError"
	case strings.Contains(msg, "expected "):
		name = "SyntaxError"
	}
	return &engine.ExecError{Name: name, Value: position.ReplaceAllString(msg, ""), Traceback: []string{msg}}
}
