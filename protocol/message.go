package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MsgType identifies the shape of an Envelope's content.
type MsgType string

const (
	ExecuteRequest    MsgType = "execute_request"
	ExecuteReply      MsgType = "execute_reply"
	ObjectInfoRequest MsgType = "object_info_request"
	ObjectInfoReply   MsgType = "object_info_reply"
	CompleteRequest   MsgType = "complete_request"
	CompleteReply     MsgType = "complete_reply"
	HistoryRequest    MsgType = "history_request"
	HistoryReply      MsgType = "history_reply"
	ConnectRequest    MsgType = "connect_request"
	ConnectReply      MsgType = "connect_reply"
	ShutdownRequest   MsgType = "shutdown_request"
	ShutdownReply     MsgType = "shutdown_reply"
	GetAttrRequest    MsgType = "getattr_request"
	GetAttrReply      MsgType = "getattr_reply"
	SetAttrRequest    MsgType = "setattr_request"
	SetAttrReply      MsgType = "setattr_reply"

	Stream      MsgType = "stream"
	DisplayData MsgType = "display_data"
	PyIn        MsgType = "pyin"
	PyOut       MsgType = "pyout"
	PyErr       MsgType = "pyerr"
	Status      MsgType = "status"
	Crash       MsgType = "crash"

	InputRequest MsgType = "input_request"
	InputReply   MsgType = "input_reply"
)

// Channel names one of the four logical kernel channels.
type Channel string

const (
	ChannelShell     Channel = "shell"
	ChannelIOPub     Channel = "iopub"
	ChannelStdin     Channel = "stdin"
	ChannelHeartbeat Channel = "hb"
)

var channels = map[MsgType]Channel{
	ExecuteRequest:    ChannelShell,
	ExecuteReply:      ChannelShell,
	ObjectInfoRequest: ChannelShell,
	ObjectInfoReply:   ChannelShell,
	CompleteRequest:   ChannelShell,
	CompleteReply:     ChannelShell,
	HistoryRequest:    ChannelShell,
	HistoryReply:      ChannelShell,
	ConnectRequest:    ChannelShell,
	ConnectReply:      ChannelShell,
	ShutdownRequest:   ChannelShell,
	ShutdownReply:     ChannelShell,
	GetAttrRequest:    ChannelShell,
	GetAttrReply:      ChannelShell,
	SetAttrRequest:    ChannelShell,
	SetAttrReply:      ChannelShell,
	Stream:            ChannelIOPub,
	DisplayData:       ChannelIOPub,
	PyIn:              ChannelIOPub,
	PyOut:             ChannelIOPub,
	PyErr:             ChannelIOPub,
	Status:            ChannelIOPub,
	Crash:             ChannelIOPub,
	InputRequest:      ChannelStdin,
	InputReply:        ChannelStdin,
}

// Channel reports the logical channel the message type travels on.
// Unknown types report an empty Channel.
func (t MsgType) Channel() Channel {
	return channels[t]
}

// Known reports whether t belongs to the fixed message type enumeration.
func (t MsgType) Known() bool {
	_, ok := channels[t]
	return ok
}

// IsRequest reports whether t is a frontend-originated request type.
func (t MsgType) IsRequest() bool {
	return strings.HasSuffix(string(t), "_request")
}

// ReplyType returns the reply type paired with a request type, or an empty
// MsgType when t is not a request.
func (t MsgType) ReplyType() MsgType {
	if !t.IsRequest() {
		return ""
	}
	return MsgType(strings.TrimSuffix(string(t), "_request") + "_reply")
}

// Header identifies a single message. Session is stable for the lifetime of
// one connection; MsgID is unique per message. The zero Header encodes as an
// empty mapping.
type Header struct {
	MsgID    string `json:"msg_id,omitempty"`
	Session  string `json:"session,omitempty"`
	Username string `json:"username,omitempty"`
}

// NewHeader returns a Header with a fresh MsgID.
func NewHeader(session, username string) Header {
	return Header{
		MsgID:    generateID(),
		Session:  session,
		Username: username,
	}
}

func (h Header) IsZero() bool {
	return h == Header{}
}

// Envelope is the unit of protocol communication.
type Envelope struct {
	Header       Header          `json:"header"`
	ParentHeader Header          `json:"parent_header"`
	MsgType      MsgType         `json:"msg_type"`
	Content      json.RawMessage `json:"content"`
}

// Decode unmarshals the envelope content into v. Missing content decodes as
// an empty mapping.
func (env *Envelope) Decode(v any) error {
	if len(env.Content) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Content, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidContent, env.MsgType, err)
	}
	return nil
}

// IsReplyTo reports whether env was caused by req.
func (env *Envelope) IsReplyTo(req *Envelope) bool {
	return !req.Header.IsZero() && env.ParentHeader == req.Header
}

func (env *Envelope) Clone() *Envelope {
	clone := *env
	clone.Content = append(json.RawMessage(nil), env.Content...)
	return &clone
}

func (env *Envelope) String() string {
	return fmt.Sprintf(
		"Envelope{MsgID: %s, Session: %s, Type: %s, Parent: %s}",
		env.Header.MsgID,
		env.Header.Session,
		env.MsgType,
		env.ParentHeader.MsgID,
	)
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
