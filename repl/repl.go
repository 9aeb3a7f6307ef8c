// Package repl is the Go language runtime of the kernel: a yaegi
// interpreter driven statement by statement.
//
// Code is parsed with tree-sitter into top-level statements. Each statement
// is evaluated on its own so the value of every top-level expression
// statement can be handed to the echo sink. In echo mode the expression
// statements inside loop and branch bodies are rewritten into kernel.Echo
// calls, so a loop echoes once per evaluation; calls there are left alone.
// An expression followed by ";" and calls to the print functions are not
// echoed.
//
// User code sees an extra package, imported as "kernel":
//
//	kernel.Input(prompt string) string
//	kernel.Display(v any)
//	kernel.Echo(v any)
//	kernel.Payload(key string, v any)
package repl

import (
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/tailored-agentic-units/evalkernel/engine"
)

// kernelPackage is the import path of the injected package.
const kernelPackage = "kernel"

// Runtime implements engine.Runtime on top of yaegi.
type Runtime struct {
	interp  *interp.Interpreter
	parser  *sitter.Parser
	parseMu sync.Mutex

	stdout *switchWriter
	stderr *switchWriter

	host    engine.IO
	names   map[string]string
	imports map[string]string
	mu      sync.Mutex
}

// New creates an interpreter with the standard library, the kernel package
// and the configured imports loaded.
func New(cfg *Config) (*Runtime, error) {
	r := &Runtime{
		parser:  newParser(),
		stdout:  &switchWriter{},
		stderr:  &switchWriter{},
		names:   make(map[string]string),
		imports: make(map[string]string),
	}

	r.interp = interp.New(interp.Options{
		Stdout: r.stdout,
		Stderr: r.stderr,
		Stdin:  strings.NewReader(""),
	})

	if err := r.interp.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := r.interp.Use(r.exports()); err != nil {
		return nil, fmt.Errorf("failed to load kernel package: %w", err)
	}

	for _, pkg := range append([]string{kernelPackage}, cfg.Imports...) {
		if _, err := r.interp.Eval("import " + strconv.Quote(pkg)); err != nil {
			return nil, fmt.Errorf("failed to import %s: %w", pkg, err)
		}
		r.imports[path.Base(pkg)] = pkg
	}

	return r, nil
}

// Run implements engine.Runtime.
func (r *Runtime) Run(ctx context.Context, code string, host engine.IO) error {
	r.bind(host)
	defer r.bind(engine.IO{})

	stmts, ok := r.parse(code)
	if !ok {
		_, err := r.interp.EvalWithContext(ctx, code)
		return classify(ctx, err)
	}

	echoing := host.Echo != nil && host.Echo != engine.Discard
	for _, s := range stmts {
		source := s.source
		if echoing && s.nested != "" {
			source = s.nested
		}

		v, err := r.interp.EvalWithContext(ctx, source)
		if err != nil {
			return classify(ctx, err)
		}
		r.track(s)

		if s.echo && echoing && v.IsValid() {
			host.Echo.Echo(bundle(v))
		}
	}
	return nil
}

// Eval implements engine.Runtime.
func (r *Runtime) Eval(ctx context.Context, expr string) (string, error) {
	v, err := r.interp.EvalWithContext(ctx, expr)
	if err != nil {
		return "", classify(ctx, err)
	}
	return plain(v), nil
}

// Names implements engine.Runtime.
func (r *Runtime) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Runtime) bind(host engine.IO) {
	r.mu.Lock()
	r.host = host
	r.mu.Unlock()

	r.stdout.Set(host.Stdout)
	r.stderr.Set(host.Stderr)
}

func (r *Runtime) current() engine.IO {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host
}

func (r *Runtime) track(s statement) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, kind := range s.declares {
		r.names[name] = kind
	}
	for name, importPath := range s.imports {
		r.imports[name] = importPath
	}
}

// switchWriter forwards interpreter output to the writer of the current Run.
type switchWriter struct {
	w  io.Writer
	mu sync.Mutex
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()

	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}
