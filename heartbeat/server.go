// Package heartbeat implements the liveness echo channel.
//
// The Server runs on its own listener and HTTP server and echoes every
// websocket frame back prefixed with the kernel identity token. It never
// touches the router or the execution engine, so it keeps answering while
// user code is stuck. The Monitor is the frontend side: it beats at a fixed
// interval and declares the kernel dead after consecutive misses.
package heartbeat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Path is the websocket endpoint served by Server.
const Path = "/hb"

const separator = '|'

// Frame builds the echo the server returns for payload.
func Frame(identity string, payload []byte) []byte {
	frame := make([]byte, 0, len(identity)+1+len(payload))
	frame = append(frame, identity...)
	frame = append(frame, separator)
	return append(frame, payload...)
}

// ParseFrame splits an echo into identity and payload.
func ParseFrame(frame []byte) (string, []byte, error) {
	i := bytes.IndexByte(frame, separator)
	if i <= 0 {
		return "", nil, fmt.Errorf("%w: missing identity", ErrBadEcho)
	}
	return string(frame[:i]), frame[i+1:], nil
}

// Server echoes heartbeat frames.
type Server struct {
	identity string
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	conns    map[*websocket.Conn]struct{}
	closed   bool
	handlers sync.WaitGroup
	mu       sync.Mutex
}

// NewServer creates a heartbeat server for the given kernel identity.
func NewServer(identity string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		identity: identity,
		logger:   logger.With(slog.String("channel", "hb")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handle)
	s.server = &http.Server{Handler: mux}
	return s
}

// Identity returns the token prefixed to every echo.
func (s *Server) Identity() string {
	return s.identity
}

// Listen binds the server's own listener. Port 0 picks a free port.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("heartbeat listen %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Port returns the bound port, 0 before Listen.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve accepts connections until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return ErrNotListening
	}
	if err := s.server.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes the open echo sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.handlers.Wait()
	return err
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.DebugContext(r.Context(), "upgrade failed", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.handlers.Add(1)
	s.mu.Unlock()

	defer s.handlers.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("heartbeat connection closed", slog.String("error", err.Error()))
			}
			return
		}
		if err := conn.WriteMessage(kind, Frame(s.identity, payload)); err != nil {
			return
		}
	}
}
