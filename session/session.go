// Package session owns the identity of one connection lifetime and builds the
// envelopes sent under it.
package session

import (
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// Session is stable for one connection lifetime: every message it builds
// shares the same session identifier and carries a fresh msg_id.
// Implementations must be safe for concurrent use.
type Session interface {
	// ID returns the session identifier.
	ID() string
	// Username returns the free-form user name stamped on headers.
	Username() string
	// Header returns a new header with a fresh msg_id.
	Header() protocol.Header
	// Message builds an envelope caused by parent. A zero parent marks a
	// client-originated request.
	Message(msgType protocol.MsgType, content any, parent protocol.Header) (*protocol.Envelope, error)
	// Reply builds the reply to req, echoing its full header as parent.
	Reply(req *protocol.Envelope, content any) (*protocol.Envelope, error)
	// Sent returns the number of envelopes built so far.
	Sent() int64
}
