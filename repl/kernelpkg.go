package repl

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

const defaultHistoryLength = 10

func (r *Runtime) exports() interp.Exports {
	return interp.Exports{
		kernelPackage + "/" + kernelPackage: {
			"Input":        reflect.ValueOf(r.input),
			"Display":      reflect.ValueOf(r.display),
			"Echo":         reflect.ValueOf(r.echo),
			"Payload":      reflect.ValueOf(r.payload),
			"Page":         reflect.ValueOf(r.page),
			"SetNextInput": reflect.ValueOf(r.setNextInput),
			"Who":          reflect.ValueOf(r.who),
			"History":      reflect.ValueOf(r.history),
		},
	}
}

// input panics when no line can be read; classify unwraps the panic.
func (r *Runtime) input(prompt string) string {
	host := r.current()
	if host.Input == nil {
		panic(engine.ErrNoInput)
	}
	line, err := host.Input(prompt)
	if err != nil {
		panic(err)
	}
	return line
}

func (r *Runtime) display(v any) {
	if host := r.current(); host.Display != nil {
		host.Display(bundle(reflect.ValueOf(v)), nil)
	}
}

// echo hands v to the echo sink of the current Run. nil is never echoed.
func (r *Runtime) echo(v any) {
	host := r.current()
	if v == nil || host.Echo == nil {
		return
	}
	host.Echo.Echo(bundle(reflect.ValueOf(v)))
}

func (r *Runtime) payload(key string, v any) {
	host := r.current()
	if host.Payload == nil {
		return
	}
	normalized, err := protocol.Normalize(v)
	if err != nil {
		panic(err)
	}
	host.Payload(key, normalized)
}

func (r *Runtime) page(v any) {
	if s, ok := v.(string); ok {
		r.payload("page", s)
		return
	}
	r.payload("page", plain(reflect.ValueOf(v)))
}

func (r *Runtime) setNextInput(text string) {
	r.payload("set_next_input", text)
}

func (r *Runtime) who() {
	host := r.current()
	if host.Stdout == nil {
		return
	}
	if names := r.Names(); len(names) > 0 {
		io.WriteString(host.Stdout, strings.Join(names, "\t")+"\n")
		return
	}
	io.WriteString(host.Stdout, "Interactive namespace is empty.\n")
}

func (r *Runtime) history(n int) {
	host := r.current()
	if host.Stdout == nil || host.History == nil {
		return
	}
	for _, line := range host.History(n) {
		io.WriteString(host.Stdout, line+"\n")
	}
}

// Directives implements engine.DirectiveProvider.
func (r *Runtime) Directives() map[string]engine.Directive {
	return map[string]engine.Directive{
		"page": func(args string) (string, error) {
			if args == "" {
				return "", fmt.Errorf("usage: %%page EXPR")
			}
			return "kernel.Page(" + args + ")", nil
		},
		"set_next_input": func(args string) (string, error) {
			return "kernel.SetNextInput(" + strconv.Quote(args) + ")", nil
		},
		"who": func(string) (string, error) {
			return "kernel.Who()", nil
		},
		"history": func(args string) (string, error) {
			n := defaultHistoryLength
			if args != "" {
				parsed, err := strconv.Atoi(args)
				if err != nil || parsed < 0 {
					return "", fmt.Errorf("usage: %%history [N]")
				}
				n = parsed
			}
			return "kernel.History(" + strconv.Itoa(n) + ")", nil
		},
	}
}
