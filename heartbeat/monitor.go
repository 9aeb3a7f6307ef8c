package heartbeat

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
)

// Monitor beats against a heartbeat endpoint and declares the kernel dead
// after MaxMisses consecutive beats go unanswered. Busy and dead are not
// distinguished here.
type Monitor struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	onDead   func()
	started  time.Time

	breaker *gobreaker.CircuitBreaker
	dead    chan struct{}
	once    sync.Once

	identity string
	conn     *websocket.Conn
	mu       sync.Mutex
}

// NewMonitor creates a monitor for a ws:// heartbeat URL. onDead runs once,
// from Run, when the kernel is declared dead.
func NewMonitor(url string, cfg *Config, onDead func(), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	maxMisses := cfg.MaxMisses
	if maxMisses <= 0 {
		maxMisses = defaultMaxMisses
	}

	m := &Monitor{
		url:      url,
		interval: cfg.IntervalDuration(),
		timeout:  cfg.TimeoutDuration(),
		logger:   logger.With(slog.String("monitor", url)),
		onDead:   onDead,
		started:  time.Now(),
		dead:     make(chan struct{}),
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "heartbeat",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxMisses)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.logger.Debug("heartbeat breaker",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if to == gobreaker.StateOpen {
				m.once.Do(func() { close(m.dead) })
			}
		},
	})

	return m
}

// Identity returns the kernel identity seen in the first echo.
func (m *Monitor) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Dead is closed once the kernel has been declared dead.
func (m *Monitor) Dead() <-chan struct{} {
	return m.dead
}

// Run beats until ctx is cancelled (returns nil) or the kernel is declared
// dead (returns ErrKernelDead after invoking the callback).
func (m *Monitor) Run(ctx context.Context) error {
	defer m.disconnect()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		_, err := m.breaker.Execute(func() (any, error) {
			return nil, m.beat(ctx)
		})
		if err != nil && ctx.Err() == nil {
			m.logger.Debug("heartbeat missed", slog.String("error", err.Error()))
		}

		select {
		case <-m.dead:
			if m.onDead != nil {
				m.onDead()
			}
			return ErrKernelDead
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// beat sends the monitor uptime and waits for its exact echo. Any failure
// drops the connection so a late echo is never mistaken for the next one.
func (m *Monitor) beat(ctx context.Context) error {
	conn, err := m.connect(ctx)
	if err != nil {
		return err
	}

	payload := []byte(strconv.FormatFloat(time.Since(m.started).Seconds(), 'f', 6, 64))
	deadline := time.Now().Add(m.timeout)

	if err := m.exchange(conn, payload, deadline); err != nil {
		m.disconnect()
		return err
	}
	return nil
}

func (m *Monitor) exchange(conn *websocket.Conn, payload []byte, deadline time.Time) error {
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return err
	}

	conn.SetReadDeadline(deadline)
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	identity, echoed, err := ParseFrame(frame)
	if err != nil {
		return err
	}
	if !bytes.Equal(echoed, payload) {
		return fmt.Errorf("%w: payload %q, want %q", ErrBadEcho, echoed, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.identity {
	case "":
		m.identity = identity
	case identity:
	default:
		return fmt.Errorf("%w: identity %q, want %q", ErrBadEcho, identity, m.identity)
	}
	return nil
}

func (m *Monitor) connect(ctx context.Context) (*websocket.Conn, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.timeout}
	conn, _, err := dialer.DialContext(dialCtx, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial heartbeat: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return conn, nil
}

func (m *Monitor) disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
