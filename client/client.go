// Package client is the frontend side of the kernel protocol.
//
// Dial bootstraps from the shell URL alone: it sends a connect_request and
// learns the IOPub, stdin and heartbeat ports from the reply.
//
//	c, err := client.Dial(ctx, "http://127.0.0.1:5001", &cfg)
//	stream, err := c.IOPub(ctx)
//	reply, err := c.Execute(ctx, protocol.ExecuteRequestContent{Code: "1 + 1"})
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/evalkernel/heartbeat"
	"github.com/tailored-agentic-units/evalkernel/protocol"
	"github.com/tailored-agentic-units/evalkernel/router"
	"github.com/tailored-agentic-units/evalkernel/session"
)

// Client talks to one kernel. It is safe for concurrent use.
type Client struct {
	cfg     Config
	session session.Session
	http    *http.Client
	shell   *connect.Client[protocol.Envelope, protocol.Envelope]
	host    string
	ports   protocol.ConnectReplyContent
	dialer  websocket.Dialer
}

// Dial connects to the kernel whose shell channel listens at shellURL.
func Dial(ctx context.Context, shellURL string, cfg *Config) (*Client, error) {
	u, err := url.Parse(shellURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadShellURL, shellURL)
	}

	c := &Client{
		cfg:     *cfg,
		session: session.NewSession(cfg.Username),
		http:    &http.Client{},
		host:    u.Hostname(),
	}
	c.shell = connect.NewClient[protocol.Envelope, protocol.Envelope](
		c.http,
		u.Scheme+"://"+u.Host+router.ShellProcedure,
		connect.WithCodec(protocol.Codec{}),
	)

	if err := c.call(ctx, protocol.ConnectRequest, protocol.ConnectRequestContent{}, &c.ports); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect to %s: %w", shellURL, err)
	}
	return c, nil
}

// DialConnectionFile connects using a connection file written by the kernel.
func DialConnectionFile(ctx context.Context, path string, cfg *Config) (*Client, error) {
	info, err := protocol.ReadConnectionFile(path)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, "http://"+net.JoinHostPort(info.IP, strconv.Itoa(info.ShellPort)), cfg)
}

// Session returns the frontend session. Its ID is the identity the kernel
// knows this frontend by.
func (c *Client) Session() session.Session {
	return c.session
}

// Ports returns the channel ports learned from connect_reply.
func (c *Client) Ports() protocol.ConnectReplyContent {
	return c.ports
}

// Request sends one shell request and returns the raw reply.
func (c *Client) Request(ctx context.Context, msgType protocol.MsgType, content any) (*protocol.Envelope, error) {
	req, err := c.session.Message(msgType, content, protocol.Header{})
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && msgType != protocol.ExecuteRequest {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TimeoutDuration())
		defer cancel()
	}

	call := connect.NewRequest(req)
	call.Header().Set(router.IdentityHeader, c.session.ID())

	resp, err := c.shell.CallUnary(ctx, call)
	if err != nil {
		if connect.CodeOf(err) == connect.CodeUnavailable {
			return nil, fmt.Errorf("%w: %v", ErrKernelClosed, err)
		}
		return nil, err
	}

	reply := resp.Msg
	if !reply.IsReplyTo(req) {
		return nil, fmt.Errorf("%w: reply %s does not answer %s", ErrRequestFailed, reply.ParentHeader.MsgID, req.Header.MsgID)
	}
	return reply, nil
}

// call sends a request and decodes the reply into out. Error replies from
// the router become ErrRequestFailed.
func (c *Client) call(ctx context.Context, msgType protocol.MsgType, content, out any) error {
	reply, err := c.Request(ctx, msgType, content)
	if err != nil {
		return err
	}

	var failure protocol.ErrorReplyContent
	if err := reply.Decode(&failure); err == nil && failure.Status == protocol.StatusError && failure.EName != "" && msgType != protocol.ExecuteRequest {
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, failure.EName, failure.EValue)
	}
	return reply.Decode(out)
}

// Execute runs code. User errors and aborts are reported in the reply.
func (c *Client) Execute(ctx context.Context, req protocol.ExecuteRequestContent) (protocol.ExecuteReplyContent, error) {
	var reply protocol.ExecuteReplyContent
	err := c.call(ctx, protocol.ExecuteRequest, req, &reply)
	return reply, err
}

func (c *Client) Inspect(ctx context.Context, name string) (protocol.ObjectInfoReplyContent, error) {
	var reply protocol.ObjectInfoReplyContent
	err := c.call(ctx, protocol.ObjectInfoRequest, protocol.ObjectInfoRequestContent{OName: name}, &reply)
	return reply, err
}

func (c *Client) Complete(ctx context.Context, line string, cursor int) (protocol.CompleteReplyContent, error) {
	var reply protocol.CompleteReplyContent
	err := c.call(ctx, protocol.CompleteRequest, protocol.CompleteRequestContent{Text: line, Line: line, CursorPos: cursor}, &reply)
	return reply, err
}

func (c *Client) History(ctx context.Context, req protocol.HistoryRequestContent) ([]protocol.HistoryItem, error) {
	var reply protocol.HistoryReplyContent
	if err := c.call(ctx, protocol.HistoryRequest, req, &reply); err != nil {
		return nil, err
	}
	return reply.History, nil
}

// GetAttr reads a kernel attribute. Gateway failures are reported in the
// reply status.
func (c *Client) GetAttr(ctx context.Context, name string) (protocol.GetAttrReplyContent, error) {
	var reply protocol.GetAttrReplyContent
	err := c.call(ctx, protocol.GetAttrRequest, protocol.GetAttrRequestContent{Name: name}, &reply)
	return reply, err
}

func (c *Client) SetAttr(ctx context.Context, name string, value any) (protocol.SetAttrReplyContent, error) {
	var reply protocol.SetAttrReplyContent
	err := c.call(ctx, protocol.SetAttrRequest, protocol.SetAttrRequestContent{Name: name, Value: value}, &reply)
	return reply, err
}

// Shutdown asks the kernel to stop and returns the echoed restart flag.
func (c *Client) Shutdown(ctx context.Context, restart bool) (bool, error) {
	var reply protocol.ShutdownReplyContent
	err := c.call(ctx, protocol.ShutdownRequest, protocol.ShutdownRequestContent{Restart: restart}, &reply)
	return reply.Restart, err
}

// Monitor returns a heartbeat monitor for the kernel. onDead fires once when
// the kernel stops answering.
func (c *Client) Monitor(onDead func()) *heartbeat.Monitor {
	return heartbeat.NewMonitor(c.url("ws", c.ports.HBPort, heartbeat.Path), &c.cfg.Heartbeat, onDead, nil)
}

// Close releases idle shell connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) url(scheme string, port int, path string) string {
	return scheme + "://" + net.JoinHostPort(c.host, strconv.Itoa(port)) + path
}

func (c *Client) dial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", rawURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return conn, nil
}

// isClosed reports websocket errors that only mean the peer went away.
func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}
