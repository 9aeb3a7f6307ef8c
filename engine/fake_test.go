package engine_test

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// fakeRuntime interprets a tiny line language:
//
//	name = expr      assignment
//	print text       write text to stdout
//	fail text        raise ValueError
//	block            wait for cancellation
//	input prompt     read a line into "answer"
//	payload k v      set an execution payload key
//	display text     publish display data
//	expr             sum of integers and names, echoed
//
// Unindented lines start a new block; indented lines continue it.
type fakeRuntime struct {
	vars      map[string]int
	callables map[string]bool
	runs      []fakeRun
	started   chan struct{}
	mu        sync.Mutex
}

type fakeRun struct {
	source string
	echo   bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		vars:      make(map[string]int),
		callables: make(map[string]bool),
		started:   make(chan struct{}, 1),
	}
}

func (r *fakeRuntime) Split(code string) ([]engine.Block, error) {
	var blocks []engine.Block
	for i, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := i + 1
		if strings.HasPrefix(line, " ") && len(blocks) > 0 {
			last := &blocks[len(blocks)-1]
			last.Source += "\n" + line
			last.EndLine = n
			continue
		}
		blocks = append(blocks, engine.Block{Source: line, StartLine: n, EndLine: n})
	}
	return blocks, nil
}

func (r *fakeRuntime) Run(ctx context.Context, code string, host engine.IO) error {
	r.mu.Lock()
	r.runs = append(r.runs, fakeRun{source: code, echo: host.Echo != engine.Discard})
	r.mu.Unlock()

	for _, raw := range strings.Split(code, "\n") {
		line := strings.TrimSpace(raw)
		cmd, arg, _ := strings.Cut(line, " ")

		switch {
		case line == "":
		case cmd == "print":
			io.WriteString(host.Stdout, arg+"\n")
		case cmd == "fail":
			return &engine.ExecError{Name: "ValueError", Value: arg, Traceback: []string{"line: " + line}}
		case cmd == "block":
			r.started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		case cmd == "input":
			answer, err := host.Input(arg)
			if err != nil {
				return err
			}
			n, _ := strconv.Atoi(answer)
			r.set("answer", n)
		case cmd == "payload":
			key, value, _ := strings.Cut(arg, " ")
			host.Payload(key, value)
		case cmd == "display":
			host.Display(map[string]any{protocol.MIMEPlainText: arg}, nil)
		case strings.Contains(line, " = "):
			name, expr, _ := strings.Cut(line, " = ")
			v, err := r.eval(expr)
			if err != nil {
				return err
			}
			r.set(name, v)
		default:
			v, err := r.eval(line)
			if err != nil {
				return err
			}
			host.Echo.Echo(map[string]any{protocol.MIMEPlainText: strconv.Itoa(v)})
		}
	}
	return nil
}

func (r *fakeRuntime) set(name string, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vars[name] = v
}

func (r *fakeRuntime) eval(expr string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum int
	for _, term := range strings.Split(expr, "+") {
		term = strings.TrimSpace(term)
		if n, err := strconv.Atoi(term); err == nil {
			sum += n
			continue
		}
		if call, ok := strings.CutSuffix(term, ")"); ok {
			name, arg, _ := strings.Cut(call, "(")
			if r.callables[name] {
				n, _ := strconv.Atoi(arg)
				sum += n * n
				continue
			}
		}
		v, ok := r.vars[term]
		if !ok {
			return 0, &engine.ExecError{Name: "NameError", Value: fmt.Sprintf("name %q is not defined", term)}
		}
		sum += v
	}
	return sum, nil
}

func (r *fakeRuntime) Eval(_ context.Context, expr string) (string, error) {
	v, err := r.eval(expr)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(v), nil
}

func (r *fakeRuntime) Inspect(name string) protocol.ObjectInfoReplyContent {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vars[name]
	if !ok {
		return protocol.ObjectInfoReplyContent{Name: name}
	}
	return protocol.ObjectInfoReplyContent{Name: name, Found: true, TypeName: "int", Kind: "var", StringForm: strconv.Itoa(v)}
}

func (r *fakeRuntime) Complete(text, _ string, _ int) ([]string, string) {
	var matches []string
	for _, name := range r.Names() {
		if strings.HasPrefix(name, text) {
			matches = append(matches, name)
		}
	}
	return matches, text
}

func (r *fakeRuntime) IsCallable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callables[name]
}

func (r *fakeRuntime) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.vars))
}

func (r *fakeRuntime) Runs() []fakeRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.runs)
}

type published struct {
	parent  protocol.Header
	msgType protocol.MsgType
	content any
}

type capturePublisher struct {
	messages []published
	mu       sync.Mutex
}

func (p *capturePublisher) Publish(_ context.Context, parent protocol.Header, msgType protocol.MsgType, content any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{parent: parent, msgType: msgType, content: content})
}

func (p *capturePublisher) Types() []protocol.MsgType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]protocol.MsgType, len(p.messages))
	for i, m := range p.messages {
		types[i] = m.msgType
	}
	return types
}

func (p *capturePublisher) Of(msgType protocol.MsgType) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.msgType == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (p *capturePublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

type fixedInput struct {
	value  string
	prompt string
}

func (f *fixedInput) Input(_ context.Context, _ protocol.Header, prompt string) (string, error) {
	f.prompt = prompt
	return f.value, nil
}
