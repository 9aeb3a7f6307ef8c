package session

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/evalkernel/protocol"
)

type identity struct {
	id       string
	username string
	sent     atomic.Int64
}

// NewSession creates a Session with a fresh UUIDv7 identifier.
func NewSession(username string) Session {
	return &identity{
		id:       uuid.Must(uuid.NewV7()).String(),
		username: username,
	}
}

// Resume creates a Session that reuses an existing identifier, for a frontend
// reattaching under the same identity.
func Resume(id, username string) Session {
	return &identity{id: id, username: username}
}

func (s *identity) ID() string {
	return s.id
}

func (s *identity) Username() string {
	return s.username
}

func (s *identity) Header() protocol.Header {
	return protocol.NewHeader(s.id, s.username)
}

func (s *identity) Message(msgType protocol.MsgType, content any, parent protocol.Header) (*protocol.Envelope, error) {
	env, err := protocol.NewEnvelope(s.Header(), msgType).
		Parent(parent).
		Content(content).
		Build()
	if err != nil {
		return nil, err
	}
	s.sent.Add(1)
	return env, nil
}

func (s *identity) Reply(req *protocol.Envelope, content any) (*protocol.Envelope, error) {
	env, err := protocol.NewReply(s.Header(), req).
		Content(content).
		Build()
	if err != nil {
		return nil, err
	}
	s.sent.Add(1)
	return env, nil
}

func (s *identity) Sent() int64 {
	return s.sent.Load()
}
