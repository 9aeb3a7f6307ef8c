package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/observability"
	"github.com/tailored-agentic-units/evalkernel/protocol"
	"github.com/tailored-agentic-units/evalkernel/session"
)

// Handler answers one shell request with the reply content. A returned error
// becomes an error reply.
type Handler func(ctx context.Context, req *protocol.Envelope) (any, error)

// immediate request types bypass the dispatch queue.
var immediate = map[protocol.MsgType]bool{
	protocol.ConnectRequest: true,
	protocol.HistoryRequest: true,
}

type identityKey struct{}

// IdentityFrom returns the originating frontend of the request being handled.
func IdentityFrom(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey{}).(string)
	return identity
}

type pending struct {
	req      *protocol.Envelope
	identity string
}

type result struct {
	reply *protocol.Envelope
	err   error
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the transport logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithFocus replaces the default SessionFocus policy.
func WithFocus(focus FocusPolicy) Option {
	return func(r *Router) { r.focus = focus }
}

// Router dispatches shell requests and owns the IOPub and stdin channels.
type Router struct {
	session session.Session

	handlers      map[protocol.MsgType]Handler
	handlersMutex sync.RWMutex

	queue *MessageChannel[*pending]

	responseChannels map[string]chan result
	responsesMutex   sync.Mutex

	subscriptions    map[string]*Subscription
	subsMutex        sync.RWMutex
	subscriberBuffer int

	keyboards      map[string]*Keyboard
	inputs         map[string]*inputWait
	keyboardsMutex sync.RWMutex
	focus          FocusPolicy
	inputTimeout   time.Duration

	upgrader    websocket.Upgrader
	conns       sync.WaitGroup
	connsClosed bool
	connsMutex  sync.Mutex

	closed       atomic.Bool
	crashOnce    sync.Once
	fatal        chan error
	ackOnce      sync.Once
	acknowledged chan struct{}

	logger   *slog.Logger
	observer observability.Observer
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// compile-time checks for the engine collaborator seams
var (
	_ engine.Publisher     = (*Router)(nil)
	_ engine.InputProvider = (*Router)(nil)
)

// New creates a Router that builds every outbound envelope under sess and
// starts its dispatch loop. Call Shutdown to stop it.
func New(sess session.Session, cfg *Config, opts ...Option) *Router {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Router{
		session:          sess,
		handlers:         make(map[protocol.MsgType]Handler),
		queue:            NewMessageChannel[*pending](ctx, cfg.QueueSize),
		responseChannels: make(map[string]chan result),
		subscriptions:    make(map[string]*Subscription),
		subscriberBuffer: cfg.SubscriberBuffer,
		keyboards:        make(map[string]*Keyboard),
		inputs:           make(map[string]*inputWait),
		focus:            SessionFocus,
		inputTimeout:     cfg.InputTimeoutDuration(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		fatal:        make(chan error, 1),
		acknowledged: make(chan struct{}),
		logger:       slog.Default(),
		observer:     observability.NoOpObserver{},
		metrics:      NewMetrics(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	go r.dispatchLoop()

	return r
}

// Handle registers the handler for a request type, replacing any previous
// one.
func (r *Router) Handle(msgType protocol.MsgType, handler Handler) {
	r.handlersMutex.Lock()
	defer r.handlersMutex.Unlock()
	r.handlers[msgType] = handler
}

// Session returns the session every outbound envelope is built under.
func (r *Router) Session() session.Session {
	return r.session
}

func (r *Router) Metrics() MetricsSnapshot {
	return r.metrics.Snapshot()
}

// Fatal delivers the error of a crashed handler. The kernel must stop.
func (r *Router) Fatal() <-chan error {
	return r.fatal
}

// Acknowledged is closed once a shutdown_reply has been handed to its
// requester.
func (r *Router) Acknowledged() <-chan struct{} {
	return r.acknowledged
}

// Closed reports whether the router refuses shell traffic.
func (r *Router) Closed() bool {
	return r.closed.Load()
}

// Request dispatches req on behalf of the frontend identity and returns its
// reply. Queued request types wait for their turn; the caller abandoning ctx
// does not cancel a request already being handled.
func (r *Router) Request(ctx context.Context, identity string, req *protocol.Envelope) (*protocol.Envelope, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	r.metrics.RecordRequest(1)
	r.observer.OnEvent(ctx, observability.NewEvent(EventDispatch, observability.LevelVerbose, "router.Request", map[string]any{
		"msg_type": string(req.MsgType),
		"msg_id":   req.Header.MsgID,
		"identity": identity,
	}))

	if res, invalid := r.validate(req); invalid {
		return r.finish(ctx, req, res)
	}

	p := &pending{req: req, identity: identity}
	if immediate[req.MsgType] {
		return r.finish(ctx, req, r.dispatch(r.ctx, p))
	}

	id := req.Header.MsgID
	responseChannel := make(chan result, 1)

	r.responsesMutex.Lock()
	if _, exists := r.responseChannels[id]; exists {
		r.responsesMutex.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, id)
	}
	r.responseChannels[id] = responseChannel
	r.responsesMutex.Unlock()

	defer func() {
		r.responsesMutex.Lock()
		delete(r.responseChannels, id)
		r.responsesMutex.Unlock()
	}()

	if err := r.queue.Send(ctx, p); err != nil {
		if r.ctx.Err() != nil || errors.Is(err, ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("failed to queue request: %w", err)
	}

	select {
	case res := <-responseChannel:
		return r.finish(ctx, req, res)
	case <-ctx.Done():
		return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
	case <-r.ctx.Done():
		return nil, ErrClosed
	}
}

// Shutdown closes the router: shell traffic is refused, the dispatch loop
// stops, and every subscription, keyboard and websocket connection ends.
func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.DebugContext(ctx, "shutting down router", slog.String("session", r.session.ID()))

	r.closed.Store(true)
	r.cancel()
	r.queue.Close()

	r.subsMutex.Lock()
	for _, sub := range r.subscriptions {
		sub.channel.Close()
	}
	r.subsMutex.Unlock()

	r.keyboardsMutex.Lock()
	keyboards := make([]*Keyboard, 0, len(r.keyboards))
	for _, kb := range r.keyboards {
		keyboards = append(keyboards, kb)
	}
	r.keyboardsMutex.Unlock()
	for _, kb := range keyboards {
		kb.Detach()
	}

	r.connsMutex.Lock()
	r.connsClosed = true
	r.connsMutex.Unlock()

	stopped := make(chan struct{})
	go func() {
		<-r.done
		r.conns.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("router shutdown: %w", ctx.Err())
	}
}

func (r *Router) dispatchLoop() {
	defer close(r.done)

	for {
		p, err := r.queue.Receive(r.ctx)
		if err != nil {
			return
		}

		res := result{err: ErrClosed}
		if !r.closed.Load() {
			res = r.dispatch(r.ctx, p)
		}
		r.deliver(p.req.Header.MsgID, res)
	}
}

func (r *Router) deliver(id string, res result) {
	r.responsesMutex.Lock()
	responseChannel, exists := r.responseChannels[id]
	r.responsesMutex.Unlock()

	if !exists {
		r.logger.WarnContext(r.ctx, "reply has no waiter", slog.String("msg_id", id))
		return
	}

	select {
	case responseChannel <- res:
	default:
	}
}

// dispatch runs the handler for p. A panic is a crash: it is broadcast and
// reported on Fatal and the request gets no reply.
func (r *Router) dispatch(ctx context.Context, p *pending) (res result) {
	defer func() {
		if v := recover(); v != nil {
			r.crash(p.req, v, debug.Stack())
			res = result{err: fmt.Errorf("%w: %v", ErrCrashed, v)}
		}
	}()

	r.handlersMutex.RLock()
	handler, exists := r.handlers[p.req.MsgType]
	r.handlersMutex.RUnlock()

	if !exists {
		return r.errorReply(p.req, "UnknownMessageType", fmt.Sprintf("%v: %s", ErrUnknownHandler, p.req.MsgType))
	}

	content, err := handler(context.WithValue(ctx, identityKey{}, p.identity), p.req)
	if err != nil {
		execErr := engine.AsExecError(err)
		return r.errorReply(p.req, execErr.Name, execErr.Value)
	}

	reply, err := r.session.Reply(p.req, content)
	if err != nil {
		return r.errorReply(p.req, "InvalidContent", err.Error())
	}

	if p.req.MsgType == protocol.ShutdownRequest {
		r.closed.Store(true)
	}
	return result{reply: reply}
}

// validate rejects requests the dispatcher cannot correlate or decode.
func (r *Router) validate(req *protocol.Envelope) (result, bool) {
	switch {
	case req.Header.MsgID == "":
		return r.errorReply(req, "MissingHeader", protocol.ErrMissingHeader.Error()), true
	case !req.MsgType.Known() || !req.MsgType.IsRequest() || req.MsgType.Channel() != protocol.ChannelShell:
		return r.errorReply(req, "UnknownMessageType", fmt.Sprintf("%v: %q", protocol.ErrUnknownType, req.MsgType)), true
	}
	if err := protocol.ValidateContent(req); err != nil {
		return r.errorReply(req, "InvalidContent", err.Error()), true
	}
	return result{}, false
}

// errorReply builds an error reply for req. Requests of unknown type are
// answered with their name suffixed "_reply".
func (r *Router) errorReply(req *protocol.Envelope, name, value string) result {
	replyType := req.MsgType.ReplyType()
	if replyType == "" {
		replyType = protocol.MsgType(strings.TrimSuffix(string(req.MsgType), "_reply") + "_reply")
	}

	// Build validates the type, so the envelope is built under a known one.

	reply, err := protocol.NewEnvelope(r.session.Header(), protocol.ExecuteReply).
		Parent(req.Header).
		Content(protocol.ErrorReplyContent{Status: protocol.StatusError, EName: name, EValue: value}).
		Build()
	if err != nil {
		return result{err: err}
	}
	reply.MsgType = replyType
	return result{reply: reply}
}

func (r *Router) finish(ctx context.Context, req *protocol.Envelope, res result) (*protocol.Envelope, error) {
	if res.err != nil {
		return nil, res.err
	}

	r.metrics.RecordReply(1)
	if res.reply.MsgType == protocol.ShutdownReply {
		r.ackOnce.Do(func() { close(r.acknowledged) })
	}
	r.observer.OnEvent(ctx, observability.NewEvent(EventReply, observability.LevelVerbose, "router.Request", map[string]any{
		"msg_type": string(res.reply.MsgType),
		"parent":   req.Header.MsgID,
	}))
	return res.reply, nil
}

func (r *Router) crash(req *protocol.Envelope, v any, stack []byte) {
	r.crashOnce.Do(func() {
		r.closed.Store(true)

		content := protocol.CrashContent{
			EName:     "Panic",
			EValue:    fmt.Sprint(v),
			Traceback: strings.Split(strings.TrimSpace(string(stack)), "\n"),
		}
		r.Publish(r.ctx, req.Header, protocol.Crash, content)

		r.logger.ErrorContext(
			r.ctx,
			"handler crashed",
			slog.String("msg_type", string(req.MsgType)),
			slog.String("msg_id", req.Header.MsgID),
			slog.String("error", content.EValue),
		)
		r.observer.OnEvent(r.ctx, observability.NewEvent(EventCrash, observability.LevelError, "router.dispatch", map[string]any{
			"msg_type": string(req.MsgType),
			"error":    content.EValue,
		}))

		r.fatal <- fmt.Errorf("%w: %s: %v", ErrCrashed, req.MsgType, v)
	})
}

// track registers a websocket handler so Shutdown can wait for it.
func (r *Router) track() bool {
	r.connsMutex.Lock()
	defer r.connsMutex.Unlock()

	if r.connsClosed {
		return false
	}
	r.conns.Add(1)
	return true
}
