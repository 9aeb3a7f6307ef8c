package protocol

import (
	"encoding/json"
	"fmt"
)

type EnvelopeBuilder struct {
	envelope *Envelope
	err      error
}

// NewEnvelope starts an envelope of the given type under header. Content
// defaults to an empty mapping.
func NewEnvelope(header Header, msgType MsgType) *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: &Envelope{
			Header:  header,
			MsgType: msgType,
			Content: json.RawMessage("{}"),
		},
	}
}

// NewReply starts the reply to req. The reply type is derived from the
// request type and the parent header is the request's full header.
func NewReply(header Header, req *Envelope) *EnvelopeBuilder {
	b := NewEnvelope(header, req.MsgType.ReplyType()).Parent(req.Header)
	if !req.MsgType.IsRequest() {
		b.err = fmt.Errorf("%w: %s is not a request", ErrUnknownType, req.MsgType)
	}
	return b
}

// Parent sets the causing message's header. The header is copied whole.
func (b *EnvelopeBuilder) Parent(parent Header) *EnvelopeBuilder {
	b.envelope.ParentHeader = parent
	return b
}

// Content marshals v as the envelope content. v must encode as a JSON object.
func (b *EnvelopeBuilder) Content(v any) *EnvelopeBuilder {
	if b.err != nil {
		return b
	}
	if raw, ok := v.(json.RawMessage); ok {
		b.envelope.Content = raw
		return b
	}

	data, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("%w: %s: %v", ErrInvalidContent, b.envelope.MsgType, err)
		return b
	}
	if len(data) == 0 || data[0] != '{' {
		b.err = fmt.Errorf("%w: %s: content must be a mapping", ErrInvalidContent, b.envelope.MsgType)
		return b
	}
	b.envelope.Content = data
	return b
}

func (b *EnvelopeBuilder) Build() (*Envelope, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.envelope.Header.MsgID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, b.envelope.MsgType)
	}
	if !b.envelope.MsgType.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, b.envelope.MsgType)
	}
	return b.envelope, nil
}
