package protocol

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Codec encodes envelopes as plain JSON for the shell transport. It satisfies
// connect.Codec and replaces connect's protojson codec under the "json" name.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Normalize converts v into its interchange form: nil, bool, float64, string,
// []any or map[string]any. Values with no JSON representation are rejected.
func Normalize(v any) (any, error) {
	if pv, err := structpb.NewValue(v); err == nil {
		return pv.AsInterface(), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}

	pv, err := structpb.NewValue(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return pv.AsInterface(), nil
}

// ValidateContent checks that env carries a mapping whose fields decode into
// the content type of its msg_type.
func ValidateContent(env *Envelope) error {
	if len(env.Content) == 0 {
		return nil
	}
	var content map[string]any
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidContent, env.MsgType, err)
	}

	typed := contentOf(env.MsgType)
	if typed == nil {
		return nil
	}
	if err := json.Unmarshal(env.Content, typed); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidContent, env.MsgType, err)
	}
	return nil
}

// contentOf returns a new value of the content type carried by t, or nil for
// an unknown type.
func contentOf(t MsgType) any {
	switch t {
	case ExecuteRequest:
		return &ExecuteRequestContent{}
	case ExecuteReply:
		return &ExecuteReplyContent{}
	case ObjectInfoRequest:
		return &ObjectInfoRequestContent{}
	case ObjectInfoReply:
		return &ObjectInfoReplyContent{}
	case CompleteRequest:
		return &CompleteRequestContent{}
	case CompleteReply:
		return &CompleteReplyContent{}
	case HistoryRequest:
		return &HistoryRequestContent{}
	case HistoryReply:
		return &HistoryReplyContent{}
	case ConnectRequest:
		return &ConnectRequestContent{}
	case ConnectReply:
		return &ConnectReplyContent{}
	case ShutdownRequest:
		return &ShutdownRequestContent{}
	case ShutdownReply:
		return &ShutdownReplyContent{}
	case GetAttrRequest:
		return &GetAttrRequestContent{}
	case GetAttrReply:
		return &GetAttrReplyContent{}
	case SetAttrRequest:
		return &SetAttrRequestContent{}
	case SetAttrReply:
		return &SetAttrReplyContent{}
	case Stream:
		return &StreamContent{}
	case DisplayData:
		return &DisplayDataContent{}
	case PyIn:
		return &PyInContent{}
	case PyOut:
		return &PyOutContent{}
	case PyErr:
		return &PyErrContent{}
	case Status:
		return &StatusContent{}
	case Crash:
		return &CrashContent{}
	case InputRequest:
		return &InputRequestContent{}
	case InputReply:
		return &InputReplyContent{}
	}
	return nil
}
