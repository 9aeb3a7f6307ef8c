package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/evalkernel/protocol"
)

const (
	// ShellProcedure is the connect procedure carrying shell envelopes.
	ShellProcedure = "/evalkernel.v1.Shell/Request"

	// IdentityHeader names the frontend on shell requests. Without it the
	// peer address identifies the frontend.
	IdentityHeader = "Evalkernel-Identity"

	IOPubPath = "/iopub"
	StdinPath = "/stdin"
)

// ShellHandler returns the path and handler of the shell channel.
func (r *Router) ShellHandler() (string, http.Handler) {
	return ShellProcedure, connect.NewUnaryHandler(
		ShellProcedure,
		r.serveShell,
		connect.WithCodec(protocol.Codec{}),
	)
}

// IOPubHandler streams every broadcast to the connected websocket as JSON
// envelopes.
func (r *Router) IOPubHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(IOPubPath, r.serveIOPub)
	return mux
}

// StdinHandler serves the keyboard of the frontend named by the identity
// query parameter.
func (r *Router) StdinHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(StdinPath, r.serveStdin)
	return mux
}

func (r *Router) serveShell(ctx context.Context, req *connect.Request[protocol.Envelope]) (*connect.Response[protocol.Envelope], error) {
	identity := req.Header().Get(IdentityHeader)
	if identity == "" {
		identity = req.Peer().Addr
	}

	reply, err := r.Request(ctx, identity, req.Msg)
	if err != nil {
		return nil, connect.NewError(shellCode(err), err)
	}
	return connect.NewResponse(reply), nil
}

func shellCode(err error) connect.Code {
	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, ErrCrashed):
		return connect.CodeUnavailable
	case errors.Is(err, ErrDuplicateRequest):
		return connect.CodeAlreadyExists
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	default:
		return connect.CodeInternal
	}
}

func (r *Router) serveIOPub(w http.ResponseWriter, req *http.Request) {
	sub, err := r.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, ok := r.upgrade(w, req)
	if !ok {
		return
	}
	defer r.conns.Done()
	defer conn.Close()

	// The read side only detects the frontend going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	for {
		env, err := sub.Receive(r.ctx)
		if err != nil {
			r.closeConn(conn)
			return
		}
		if err := conn.WriteJSON(env); err != nil {
			r.logger.DebugContext(r.ctx, "iopub write failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (r *Router) serveStdin(w http.ResponseWriter, req *http.Request) {
	identity := req.URL.Query().Get("identity")
	if identity == "" {
		http.Error(w, "missing identity", http.StatusBadRequest)
		return
	}

	kb, err := r.Attach(identity)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer kb.Detach()

	conn, ok := r.upgrade(w, req)
	if !ok {
		return
	}
	defer r.conns.Done()
	defer conn.Close()

	go func() {
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				kb.Detach()
				return
			}
			if err := kb.Reply(&env); err != nil {
				r.logger.WarnContext(
					r.ctx,
					"discarded stdin message",
					slog.String("identity", identity),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	for {
		env, err := kb.Requests(r.ctx)
		if err != nil {
			r.closeConn(conn)
			return
		}
		if err := conn.WriteJSON(env); err != nil {
			r.logger.DebugContext(r.ctx, "stdin write failed", slog.String("error", err.Error()))
			return
		}
	}
}

// upgrade switches to a websocket and registers the connection with
// Shutdown. On success the caller must call r.conns.Done.
func (r *Router) upgrade(w http.ResponseWriter, req *http.Request) (*websocket.Conn, bool) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.DebugContext(req.Context(), "upgrade failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !r.track() {
		conn.Close()
		return nil, false
	}
	return conn, true
}

func (r *Router) closeConn(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
