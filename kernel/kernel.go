// Package kernel composes the execution kernel: session, history store,
// language runtime, execution engine, attribute gateway, channel router and
// heartbeat server.
//
// The kernel initializes from configuration via New, creating all subsystems
// internally. Functional options allow test overrides of any subsystem.
//
//	k, err := kernel.New(&cfg)
//	err = k.Serve(ctx) // until ctx ends, a shutdown_request or a crash
//	if errors.Is(err, kernel.ErrRestartRequested) { ... }
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/gateway"
	"github.com/tailored-agentic-units/evalkernel/heartbeat"
	"github.com/tailored-agentic-units/evalkernel/history"
	"github.com/tailored-agentic-units/evalkernel/observability"
	"github.com/tailored-agentic-units/evalkernel/protocol"
	"github.com/tailored-agentic-units/evalkernel/repl"
	"github.com/tailored-agentic-units/evalkernel/router"
	"github.com/tailored-agentic-units/evalkernel/session"
)

const shutdownTimeout = 5 * time.Second

// Option configures a Kernel before its subsystems are wired together.
// Overrides replace config-created defaults.
type Option func(*Kernel)

// WithRuntime overrides the config-created language runtime.
func WithRuntime(rt engine.Runtime) Option {
	return func(k *Kernel) { k.runtime = rt }
}

// WithHistoryStore overrides the config-created history store. The kernel
// opens a new session on it.
func WithHistoryStore(s history.Store) Option {
	return func(k *Kernel) { k.store = s }
}

// WithSession overrides the config-created session.
func WithSession(s session.Session) Option {
	return func(k *Kernel) { k.session = s }
}

// WithObserver overrides the observer named in the config.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// WithLogger sets the transport logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kernel) { k.logger = logger }
}

type listener struct {
	channel protocol.Channel
	port    *int
	server  *http.Server
	ln      net.Listener
}

// Kernel owns one kernel run.
type Kernel struct {
	cfg Config

	session   session.Session
	store     history.Store
	runtime   engine.Runtime
	engine    *engine.Engine
	gateway   *gateway.Table
	router    *router.Router
	heartbeat *heartbeat.Server

	observer observability.Observer
	logger   *slog.Logger

	listeners []*listener
	listened  bool
	restart   atomic.Bool
	closeOnce sync.Once
}

// New creates a Kernel from configuration. Subsystems are initialized from
// their config sections; options applied before wiring can override any of
// them.
func New(cfg *Config, opts ...Option) (*Kernel, error) {
	k := &Kernel{
		cfg:     *cfg,
		gateway: gateway.New(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(k)
	}

	if k.observer == nil {
		observer, err := observability.Resolve(cfg.Observer)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer: %w", err)
		}
		k.observer = observer
	}

	if k.session == nil {
		sesh, err := session.New(&cfg.Session)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		k.session = sesh
	}

	if k.store == nil {
		store, err := history.NewStore(&cfg.History)
		if err != nil {
			return nil, fmt.Errorf("failed to create history store: %w", err)
		}
		k.store = store
	}
	if _, err := k.store.Begin(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to open history session: %w", err)
	}

	if k.runtime == nil {
		rt, err := repl.New(&cfg.REPL)
		if err != nil {
			k.store.Close()
			return nil, fmt.Errorf("failed to create runtime: %w", err)
		}
		k.runtime = rt
	}

	k.router = router.New(
		k.session,
		&cfg.Router,
		router.WithLogger(k.logger),
		router.WithObserver(k.observer),
	)

	eng, err := engine.New(
		k.runtime,
		k.store,
		&cfg.Engine,
		engine.WithPublisher(k.router),
		engine.WithInput(k.router),
		engine.WithObserver(k.observer),
	)
	if err != nil {
		k.abandon()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	k.engine = eng

	k.heartbeat = heartbeat.NewServer(k.session.ID(), k.logger)

	if err := k.expose(); err != nil {
		k.abandon()
		return nil, fmt.Errorf("failed to declare attributes: %w", err)
	}
	k.routes()

	return k, nil
}

// Session returns the kernel session.
func (k *Kernel) Session() session.Session {
	return k.session
}

// Engine returns the execution engine.
func (k *Kernel) Engine() *engine.Engine {
	return k.engine
}

// Router returns the channel router.
func (k *Kernel) Router() *router.Router {
	return k.router
}

// Interrupt aborts the running execution, if any.
func (k *Kernel) Interrupt() bool {
	interrupted := k.engine.Interrupt()
	k.observer.OnEvent(context.Background(), observability.NewEvent(EventInterrupt, observability.LevelInfo, "kernel.Interrupt", map[string]any{
		"interrupted": interrupted,
	}))
	return interrupted
}

// Connection reports where the kernel listens. Ports are 0 before Listen.
func (k *Kernel) Connection() protocol.ConnectionInfo {
	t := k.cfg.Transport
	return protocol.ConnectionInfo{
		IP:        t.IP,
		ShellPort: t.ShellPort,
		IOPubPort: t.IOPubPort,
		StdinPort: t.StdinPort,
		HBPort:    k.heartbeat.Port(),
		Session:   k.session.ID(),
	}
}

// Listen binds all four channels and writes the connection file when one is
// configured.
func (k *Kernel) Listen() error {
	if k.listened {
		return nil
	}

	t := &k.cfg.Transport
	shellPath, shellHandler := k.router.ShellHandler()
	shell := http.NewServeMux()
	shell.Handle(shellPath, shellHandler)

	k.listeners = []*listener{
		{channel: protocol.ChannelShell, port: &t.ShellPort, server: &http.Server{Handler: shell}},
		{channel: protocol.ChannelIOPub, port: &t.IOPubPort, server: &http.Server{Handler: k.router.IOPubHandler()}},
		{channel: protocol.ChannelStdin, port: &t.StdinPort, server: &http.Server{Handler: k.router.StdinHandler()}},
	}

	for _, l := range k.listeners {
		addr := net.JoinHostPort(t.IP, strconv.Itoa(*l.port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			k.closeListeners()
			return fmt.Errorf("%s listen %s: %w", l.channel, addr, err)
		}
		l.ln = ln
		*l.port = ln.Addr().(*net.TCPAddr).Port
	}

	if err := k.heartbeat.Listen(net.JoinHostPort(t.IP, strconv.Itoa(t.HBPort))); err != nil {
		k.closeListeners()
		return err
	}
	t.HBPort = k.heartbeat.Port()
	k.listened = true

	info := k.Connection()
	if k.cfg.ConnectionFile != "" {
		if err := protocol.WriteConnectionFile(k.cfg.ConnectionFile, info); err != nil {
			return err
		}
	}

	k.logger.Info(
		"kernel listening",
		slog.String("session", info.Session),
		slog.String("ip", info.IP),
		slog.Int("shell_port", info.ShellPort),
		slog.Int("iopub_port", info.IOPubPort),
		slog.Int("stdin_port", info.StdinPort),
		slog.Int("hb_port", info.HBPort),
	)
	k.observer.OnEvent(context.Background(), observability.NewEvent(EventListening, observability.LevelInfo, "kernel.Listen", map[string]any{
		"session":    info.Session,
		"shell_port": info.ShellPort,
		"iopub_port": info.IOPubPort,
		"stdin_port": info.StdinPort,
		"hb_port":    info.HBPort,
	}))
	return nil
}

// Serve runs the kernel until ctx ends, a shutdown_request is acknowledged or
// a handler crashes. It returns ErrRestartRequested when the shutdown asked
// for a restart and the crash error after a crash. The kernel cannot be
// served again.
func (k *Kernel) Serve(ctx context.Context) error {
	if err := k.Listen(); err != nil {
		k.Close()
		return err
	}
	defer k.close()

	g, gctx := errgroup.WithContext(ctx)

	for _, l := range k.listeners {
		g.Go(func() error {
			if err := l.server.Serve(l.ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", l.channel, err)
			}
			return nil
		})
	}
	g.Go(k.heartbeat.Serve)

	g.Go(func() error {
		var cause error
		reason := "context"

		select {
		case <-gctx.Done():
		case <-k.router.Acknowledged():
			reason = "shutdown_request"
		case err := <-k.router.Fatal():
			reason = "crash"
			cause = err
			k.observer.OnEvent(ctx, observability.NewEvent(EventCrash, observability.LevelError, "kernel.Serve", map[string]any{
				"error": err.Error(),
			}))
		}

		k.observer.OnEvent(ctx, observability.NewEvent(EventShutdown, observability.LevelInfo, "kernel.Serve", map[string]any{
			"reason":  reason,
			"restart": k.restart.Load(),
		}))
		k.shutdown()
		return cause
	})

	err := g.Wait()
	if err != nil {
		k.observer.OnEvent(ctx, observability.NewEvent(EventServeFailed, observability.LevelError, "kernel.Serve", map[string]any{
			"error": err.Error(),
		}))
		return err
	}
	if k.restart.Load() {
		return ErrRestartRequested
	}
	return nil
}

// Close stops a kernel that is not being served and releases its resources.
func (k *Kernel) Close() {
	k.closeListeners()
	k.shutdown()
	k.close()
}

// shutdown stops the router first so queued requests are refused and the
// running execution is abandoned, then drains the servers.
func (k *Kernel) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := k.router.Shutdown(ctx); err != nil {
		k.logger.WarnContext(ctx, "router shutdown", slog.String("error", err.Error()))
	}
	for _, l := range k.listeners {
		if err := l.server.Shutdown(ctx); err != nil {
			k.logger.WarnContext(ctx, "server shutdown", slog.String("channel", string(l.channel)), slog.String("error", err.Error()))
		}
	}
	if err := k.heartbeat.Shutdown(ctx); err != nil {
		k.logger.WarnContext(ctx, "heartbeat shutdown", slog.String("error", err.Error()))
	}
}

// close releases the history store and removes the connection file.
func (k *Kernel) close() {
	k.closeOnce.Do(func() {
		if err := k.store.Close(); err != nil {
			k.logger.Warn("close history store", slog.String("error", err.Error()))
		}
		if k.listened && k.cfg.ConnectionFile != "" {
			if err := os.Remove(k.cfg.ConnectionFile); err != nil && !os.IsNotExist(err) {
				k.logger.Warn("remove connection file", slog.String("error", err.Error()))
			}
		}
	})
}

// abandon releases what New created before it failed.
func (k *Kernel) abandon() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := k.router.Shutdown(ctx); err != nil {
		k.logger.WarnContext(ctx, "router shutdown", slog.String("error", err.Error()))
	}
	if err := k.store.Close(); err != nil {
		k.logger.WarnContext(ctx, "close history store", slog.String("error", err.Error()))
	}
}

func (k *Kernel) closeListeners() {
	for _, l := range k.listeners {
		if l.ln != nil {
			l.ln.Close()
			l.ln = nil
		}
	}
}
