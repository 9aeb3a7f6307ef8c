package client

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/evalkernel/protocol"
	"github.com/tailored-agentic-units/evalkernel/router"
	"github.com/tailored-agentic-units/evalkernel/session"
)

// Stream is an IOPub subscription.
type Stream struct {
	conn *websocket.Conn
}

// IOPub subscribes to the kernel's broadcasts. Broadcasts published before
// the subscription are not replayed.
func (c *Client) IOPub(ctx context.Context) (*Stream, error) {
	conn, err := c.dial(ctx, c.url("ws", c.ports.IOPubPort, router.IOPubPath))
	if err != nil {
		return nil, err
	}
	return &Stream{conn: conn}, nil
}

// Next blocks for the next broadcast. It returns io.EOF once the kernel
// closes the channel.
func (s *Stream) Next() (*protocol.Envelope, error) {
	var env protocol.Envelope
	if err := s.conn.ReadJSON(&env); err != nil {
		if isClosed(err) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &env, nil
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

// Answer produces the value for an input prompt.
type Answer func(prompt string) (string, error)

// Stdin is this frontend's keyboard on the kernel.
type Stdin struct {
	session session.Session
	conn    *websocket.Conn
}

// Stdin attaches the keyboard. The kernel routes input requests raised by
// this frontend's executions to it.
func (c *Client) Stdin(ctx context.Context) (*Stdin, error) {
	query := url.Values{"identity": {c.session.ID()}}
	conn, err := c.dial(ctx, c.url("ws", c.ports.StdinPort, router.StdinPath)+"?"+query.Encode())
	if err != nil {
		return nil, err
	}
	return &Stdin{session: c.session, conn: conn}, nil
}

// Serve answers input requests until the kernel closes the channel or ctx
// ends.
func (s *Stdin) Serve(ctx context.Context, answer Answer) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		var req protocol.Envelope
		if err := s.conn.ReadJSON(&req); err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}
			return err
		}
		if req.MsgType != protocol.InputRequest {
			continue
		}

		var content protocol.InputRequestContent
		if err := req.Decode(&content); err != nil {
			return err
		}
		value, err := answer(content.Prompt)
		if err != nil {
			return fmt.Errorf("answer %q: %w", content.Prompt, err)
		}

		reply, err := s.session.Reply(&req, protocol.InputReplyContent{Value: value})
		if err != nil {
			return err
		}
		if err := s.conn.WriteJSON(reply); err != nil {
			return err
		}
	}
}

func (s *Stdin) Close() error {
	return s.conn.Close()
}
