// Package engine implements the execution state machine of the kernel.
//
// An Engine accepts execute requests one at a time, moves idle -> busy ->
// idle (announcing each transition), transforms and splits the code, runs
// it through a Runtime with an explicit echo Sink, evaluates user variables
// and expressions, runs post-execute hooks and records history. It owns the
// execution counter; other components read it through ExecutionCount.
//
//	eng, err := engine.New(rt, store, &cfg, engine.WithPublisher(router))
//	reply := eng.Execute(ctx, req.Header, content)
package engine

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tailored-agentic-units/evalkernel/history"
	"github.com/tailored-agentic-units/evalkernel/observability"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// Publisher broadcasts content caused by the request whose header is parent.
type Publisher interface {
	Publish(ctx context.Context, parent protocol.Header, msgType protocol.MsgType, content any)
}

// InputProvider obtains a line of input from the frontend holding the
// keyboard for the request whose header is parent.
type InputProvider interface {
	Input(ctx context.Context, parent protocol.Header, prompt string) (string, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, protocol.Header, protocol.MsgType, any) {}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets where status, streams and echoed values go.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithInput sets the stdin collaborator. Without one, input requests from
// user code fail.
func WithInput(p InputProvider) Option {
	return func(e *Engine) { e.input = p }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithDirectives adds % directives, overriding those of the runtime.
func WithDirectives(d map[string]Directive) Option {
	return func(e *Engine) { maps.Copy(e.directives, d) }
}

// Engine executes code for the kernel.
type Engine struct {
	runtime   Runtime
	history   history.Store
	publisher Publisher
	input     InputProvider
	observer  observability.Observer

	pre        *HookSet
	post       *HookSet
	directives map[string]Directive

	count        atomic.Int64
	busy         atomic.Bool
	echoMaxLines atomic.Int64

	run    sync.Mutex
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates an Engine. The history store must already have a live
// session.
func New(rt Runtime, store history.Store, cfg *Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		runtime:    rt,
		history:    store,
		publisher:  nopPublisher{},
		observer:   observability.NoOpObserver{},
		pre:        NewHookSet(),
		post:       NewHookSet(),
		directives: make(map[string]Directive),
	}
	e.echoMaxLines.Store(int64(cfg.EchoMaxLines))

	if dp, ok := rt.(DirectiveProvider); ok {
		maps.Copy(e.directives, dp.Directives())
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PreExecute returns the hooks run before every non-silent execution.
func (e *Engine) PreExecute() *HookSet { return e.pre }

// PostExecute returns the hooks run after every successful non-silent
// execution.
func (e *Engine) PostExecute() *HookSet { return e.post }

// ExecutionCount returns the current counter value.
func (e *Engine) ExecutionCount() int {
	return int(e.count.Load())
}

// State returns "busy" while a request is being handled, otherwise "idle".
func (e *Engine) State() string {
	if e.busy.Load() {
		return protocol.StateBusy
	}
	return protocol.StateIdle
}

// EchoMaxLines returns the trailing block length limit for echo mode.
func (e *Engine) EchoMaxLines() int {
	return int(e.echoMaxLines.Load())
}

// SetEchoMaxLines changes the trailing block length limit.
func (e *Engine) SetEchoMaxLines(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: echo_max_lines must be at least 1, got %d", ErrInvalidConfig, n)
	}
	e.echoMaxLines.Store(int64(n))
	return nil
}

// Interrupt aborts the in-flight execution. It reports whether one was
// running.
func (e *Engine) Interrupt() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// execution is the state of one execute request.
type execution struct {
	parent  protocol.Header
	count   int
	silent  bool
	payload map[string]any
	outputs []string
}

// Execute runs one execute request and returns its reply content. The reply
// is always produced; user errors and aborts are reported in it.
func (e *Engine) Execute(ctx context.Context, parent protocol.Header, req protocol.ExecuteRequestContent) protocol.ExecuteReplyContent {
	e.run.Lock()
	defer e.run.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	e.setBusy(ctx, parent, true)
	defer e.setBusy(ctx, parent, false)

	x := &execution{
		parent:  parent,
		silent:  req.Silent,
		payload: make(map[string]any),
	}

	if !req.Silent {
		x.count = int(e.count.Add(1))
		e.publisher.Publish(ctx, parent, protocol.PyIn, protocol.PyInContent{
			Code:           req.Code,
			ExecutionCount: x.count,
		})
		e.runHooks(ctx, x, e.pre, "pre_execute")
	} else {
		x.count = e.ExecutionCount()
	}

	e.observer.OnEvent(ctx, observability.NewEvent(EventExecuteStart, observability.LevelVerbose, "engine.Execute", map[string]any{
		"execution_count": x.count,
		"silent":          req.Silent,
		"code_length":     len(req.Code),
	}))

	t, err := e.execute(runCtx, x, req.Code)

	switch {
	case runCtx.Err() != nil:
		e.observer.OnEvent(ctx, observability.NewEvent(EventExecuteAbort, observability.LevelInfo, "engine.Execute", map[string]any{
			"execution_count": x.count,
		}))
		return protocol.ExecuteReplyContent{Status: protocol.StatusAbort, ExecutionCount: x.count}

	case err != nil:
		return e.fail(ctx, x, req, t, err)
	}

	reply := protocol.ExecuteReplyContent{
		Status:          protocol.StatusOK,
		ExecutionCount:  x.count,
		TransformedCode: &t.Reported,
	}

	if !req.Silent {
		reply.UserVariables = e.evalAll(runCtx, req.UserVariables)
		reply.UserExpressions = e.evalExpressions(runCtx, req.UserExpressions)
		e.runHooks(ctx, x, e.post, "post_execute")
		e.record(ctx, x, req.Code, t.Source)
	}

	if len(x.payload) > 0 {
		reply.Payload = x.payload
	}

	e.observer.OnEvent(ctx, observability.NewEvent(EventExecuteComplete, observability.LevelVerbose, "engine.Execute", map[string]any{
		"execution_count": x.count,
		"outputs":         len(x.outputs),
	}))
	return reply
}

func (e *Engine) execute(ctx context.Context, x *execution, code string) (transformed, error) {
	t, err := transform(code, e.directives, e.runtime.IsCallable)
	if err != nil {
		return transformed{Source: code}, err
	}

	host := e.newIO(ctx, x)

	if x.silent {
		return t, e.runtime.Run(ctx, t.Source, host)
	}

	blocks, err := e.runtime.Split(t.Source)
	if err != nil {
		return t, err
	}

	for _, u := range plan(blocks, e.EchoMaxLines()) {
		host.Echo = Discard
		if u.echo {
			host.Echo = e.sink(ctx, x)
		}
		if err := e.runtime.Run(ctx, u.source, host); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (e *Engine) fail(ctx context.Context, x *execution, req protocol.ExecuteRequestContent, t transformed, err error) protocol.ExecuteReplyContent {
	execErr := AsExecError(err)
	traceback := execErr.Traceback
	if traceback == nil {
		traceback = []string{}
	}

	if !req.Silent {
		e.publisher.Publish(ctx, x.parent, protocol.PyErr, protocol.PyErrContent{
			ExecutionCount: x.count,
			EName:          execErr.Name,
			EValue:         execErr.Value,
			Traceback:      traceback,
		})
		e.record(ctx, x, req.Code, t.Source)
	}

	e.observer.OnEvent(ctx, observability.NewEvent(EventExecuteError, observability.LevelInfo, "engine.Execute", map[string]any{
		"execution_count": x.count,
		"ename":           execErr.Name,
		"evalue":          execErr.Value,
	}))

	return protocol.ExecuteReplyContent{
		Status:         protocol.StatusError,
		ExecutionCount: x.count,
		EName:          execErr.Name,
		EValue:         execErr.Value,
		Traceback:      traceback,
	}
}

func (e *Engine) setBusy(ctx context.Context, parent protocol.Header, busy bool) {
	e.busy.Store(busy)
	state := protocol.StateIdle
	if busy {
		state = protocol.StateBusy
	}
	e.publisher.Publish(ctx, parent, protocol.Status, protocol.StatusContent{ExecutionState: state})
}

func (e *Engine) sink(ctx context.Context, x *execution) Sink {
	return SinkFunc(func(data map[string]any) {
		if text, ok := data[protocol.MIMEPlainText].(string); ok {
			x.outputs = append(x.outputs, text)
		}
		e.publisher.Publish(ctx, x.parent, protocol.PyOut, protocol.PyOutContent{
			ExecutionCount: x.count,
			Data:           data,
		})
	})
}

func (e *Engine) newIO(ctx context.Context, x *execution) IO {
	return IO{
		Echo:   Discard,
		Stdout: &streamWriter{ctx: ctx, engine: e, parent: x.parent, name: protocol.StreamStdout},
		Stderr: &streamWriter{ctx: ctx, engine: e, parent: x.parent, name: protocol.StreamStderr},
		Display: func(data, metadata map[string]any) {
			e.publisher.Publish(ctx, x.parent, protocol.DisplayData, protocol.DisplayDataContent{
				Source:   "kernel.Display",
				Data:     data,
				Metadata: metadata,
			})
		},
		Input: func(prompt string) (string, error) {
			if e.input == nil {
				return "", ErrNoInput
			}
			return e.input.Input(ctx, x.parent, prompt)
		},
		Payload: func(key string, value any) {
			x.payload[key] = value
		},
		History: func(n int) []string {
			entries, err := e.history.Tail(ctx, n)
			if err != nil {
				return nil
			}
			lines := make([]string, len(entries))
			for i, entry := range entries {
				lines[i] = fmt.Sprintf("%d/%d: %s", entry.Session, entry.Line, entry.Source)
			}
			return lines
		},
	}
}

func (e *Engine) evalAll(ctx context.Context, names []string) map[string]string {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = e.eval(ctx, name)
	}
	return out
}

func (e *Engine) evalExpressions(ctx context.Context, exprs map[string]string) map[string]string {
	if len(exprs) == 0 {
		return nil
	}
	out := make(map[string]string, len(exprs))
	for key, expr := range exprs {
		out[key] = e.eval(ctx, expr)
	}
	return out
}

func (e *Engine) eval(ctx context.Context, expr string) string {
	value, err := e.runtime.Eval(ctx, expr)
	if err != nil {
		return inline(err)
	}
	return value
}

// runHooks invokes a hook set and reports each pruned hook once on stderr.
func (e *Engine) runHooks(ctx context.Context, x *execution, set *HookSet, stage string) {
	for _, f := range set.Run(ctx) {
		e.publisher.Publish(ctx, x.parent, protocol.Stream, protocol.StreamContent{
			Name: protocol.StreamStderr,
			Data: fmt.Sprintf("%s hook %q failed and was removed: %s\n", stage, f.Tag, inline(f.Err)),
		})
		e.observer.OnEvent(ctx, observability.NewEvent(EventHookPruned, observability.LevelWarning, "engine.runHooks", map[string]any{
			"stage": stage,
			"tag":   f.Tag,
			"error": f.Err.Error(),
		}))
	}
}

func (e *Engine) record(ctx context.Context, x *execution, raw, source string) {
	entry := history.Entry{
		Line:      x.count,
		Source:    source,
		SourceRaw: raw,
	}
	if len(x.outputs) > 0 {
		output := strings.Join(x.outputs, "\n")
		entry.Output = &output
	}

	if err := e.history.Append(ctx, entry); err != nil {
		e.observer.OnEvent(ctx, observability.NewEvent(EventHistoryFailed, observability.LevelError, "engine.record", map[string]any{
			"execution_count": x.count,
			"error":           err.Error(),
		}))
	}
}

// Inspect answers an object_info request.
func (e *Engine) Inspect(name string) protocol.ObjectInfoReplyContent {
	e.run.Lock()
	defer e.run.Unlock()
	return e.runtime.Inspect(strings.TrimSpace(name))
}

// Complete answers a complete request.
func (e *Engine) Complete(req protocol.CompleteRequestContent) protocol.CompleteReplyContent {
	e.run.Lock()
	defer e.run.Unlock()

	line := req.Line
	if line == "" {
		line = req.Text
	}
	cursor := req.CursorPos
	if cursor <= 0 || cursor > len(line) {
		cursor = len(line)
	}

	matches, matched := e.runtime.Complete(req.Text, line, cursor)
	if matches == nil {
		matches = []string{}
	}
	return protocol.CompleteReplyContent{
		Status:      protocol.StatusOK,
		Matches:     matches,
		MatchedText: matched,
	}
}
