package engine

import (
	"context"
	"io"

	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// Block is one syntactically self-contained top-level statement. Lines are
// 1-based and inclusive.
type Block struct {
	Source    string
	StartLine int
	EndLine   int
}

// Lines returns how many source lines the block spans.
func (b Block) Lines() int {
	return b.EndLine - b.StartLine + 1
}

// Runtime is the language collaborator that compiles and evaluates code.
// Every method is called with execution serialized by the Engine.
type Runtime interface {
	// Split breaks code into top-level blocks. Code that does not parse is
	// returned as a single block so Run reports the syntax error.
	Split(code string) ([]Block, error)
	// Run executes code. Every value-producing expression statement evaluated
	// at the interactive level (top level, loop and branch bodies) is handed
	// to io.Echo.
	Run(ctx context.Context, code string, io IO) error
	// Eval evaluates one expression and returns its plain-text form.
	Eval(ctx context.Context, expr string) (string, error)
	// Inspect describes a named object.
	Inspect(name string) protocol.ObjectInfoReplyContent
	// Complete returns candidate completions for the token before cursor.
	Complete(text, line string, cursor int) (matches []string, matched string)
	// IsCallable reports whether name resolves to a function.
	IsCallable(name string) bool
	// Names lists user-defined names in the namespace.
	Names() []string
}

// DirectiveProvider is implemented by runtimes that contribute % directives.
type DirectiveProvider interface {
	Directives() map[string]Directive
}

// Directive expands the arguments of a "%name args" line into source code.
type Directive func(args string) (string, error)

// Sink receives echoed values as MIME bundles. Every bundle carries
// text/plain.
type Sink interface {
	Echo(data map[string]any)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(data map[string]any)

func (f SinkFunc) Echo(data map[string]any) { f(data) }

type discard struct{}

func (discard) Echo(map[string]any) {}

// Discard is the no-echo sink.
var Discard Sink = discard{}

// IO connects running code to the kernel for the duration of one Run.
type IO struct {
	Echo    Sink
	Stdout  io.Writer
	Stderr  io.Writer
	Display func(data, metadata map[string]any)
	Input   func(prompt string) (string, error)
	Payload func(key string, value any)
	History func(n int) []string
}
