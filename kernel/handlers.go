package kernel

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/gateway"
	"github.com/tailored-agentic-units/evalkernel/history"
	"github.com/tailored-agentic-units/evalkernel/observability"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// routes registers one handler per shell request type.
func (k *Kernel) routes() {
	k.router.Handle(protocol.ExecuteRequest, k.handleExecute)
	k.router.Handle(protocol.ObjectInfoRequest, k.handleObjectInfo)
	k.router.Handle(protocol.CompleteRequest, k.handleComplete)
	k.router.Handle(protocol.HistoryRequest, k.handleHistory)
	k.router.Handle(protocol.ConnectRequest, k.handleConnect)
	k.router.Handle(protocol.ShutdownRequest, k.handleShutdown)
	k.router.Handle(protocol.GetAttrRequest, k.handleGetAttr)
	k.router.Handle(protocol.SetAttrRequest, k.handleSetAttr)
}

func (k *Kernel) handleExecute(ctx context.Context, req *protocol.Envelope) (any, error) {
	var content protocol.ExecuteRequestContent
	if err := req.Decode(&content); err != nil {
		return nil, err
	}
	return k.engine.Execute(ctx, req.Header, content), nil
}

func (k *Kernel) handleObjectInfo(_ context.Context, req *protocol.Envelope) (any, error) {
	var content protocol.ObjectInfoRequestContent
	if err := req.Decode(&content); err != nil {
		return nil, err
	}
	return k.engine.Inspect(content.OName), nil
}

func (k *Kernel) handleComplete(_ context.Context, req *protocol.Envelope) (any, error) {
	var content protocol.CompleteRequestContent
	if err := req.Decode(&content); err != nil {
		return nil, err
	}
	return k.engine.Complete(content), nil
}

func (k *Kernel) handleHistory(ctx context.Context, req *protocol.Envelope) (any, error) {
	var content protocol.HistoryRequestContent
	if err := req.Decode(&content); err != nil {
		return nil, err
	}

	var (
		entries []history.Entry
		err     error
	)
	switch content.HistAccessType {
	case protocol.HistoryRange:
		entries, err = k.store.Range(ctx, content.Session, content.Start, content.Stop)
	case protocol.HistoryTail:
		entries, err = k.store.Tail(ctx, content.N)
	case protocol.HistorySearch:
		entries, err = k.store.Search(ctx, content.Pattern, content.Raw)
	default:
		err = fmt.Errorf("%w: hist_access_type %q", ErrInvalidHistoryRequest, content.HistAccessType)
	}
	if err != nil {
		return nil, &engine.ExecError{Name: "ValueError", Value: err.Error()}
	}

	items := make([]protocol.HistoryItem, 0, len(entries))
	for _, e := range entries {
		item := protocol.HistoryItem{
			Session: e.Session,
			Line:    e.Line,
			Input:   e.Input(content.Raw),
		}
		if content.Output && e.Output != nil {
			output := *e.Output
			item.Output = &output
		}
		items = append(items, item)
	}

	return protocol.HistoryReplyContent{Status: protocol.StatusOK, History: items}, nil
}

func (k *Kernel) handleConnect(context.Context, *protocol.Envelope) (any, error) {
	info := k.Connection()
	return protocol.ConnectReplyContent{
		ShellPort: info.ShellPort,
		IOPubPort: info.IOPubPort,
		StdinPort: info.StdinPort,
		HBPort:    info.HBPort,
	}, nil
}

// handleShutdown echoes restart. Serve stops once the router has handed the
// reply to the requester.
func (k *Kernel) handleShutdown(_ context.Context, req *protocol.Envelope) (any, error) {
	var content protocol.ShutdownRequestContent
	if err := req.Decode(&content); err != nil {
		return nil, err
	}
	k.restart.Store(content.Restart)
	return protocol.ShutdownReplyContent{Restart: content.Restart}, nil
}

func (k *Kernel) handleGetAttr(ctx context.Context, req *protocol.Envelope) (any, error) {
	var content protocol.GetAttrRequestContent
	if err := req.Decode(&content); err != nil {
		return nil, err
	}

	value, err := k.gateway.Get(content.Name)
	if err == nil {
		value, err = protocol.Normalize(value)
	}
	k.attributeEvent(ctx, "get", content.Name, err)
	if err != nil {
		return protocol.GetAttrReplyContent{Status: string(gateway.KindOf(err)), Message: err.Error()}, nil
	}
	return protocol.GetAttrReplyContent{Status: string(gateway.KindOK), Value: value}, nil
}

func (k *Kernel) handleSetAttr(ctx context.Context, req *protocol.Envelope) (any, error) {
	var content protocol.SetAttrRequestContent
	if err := req.Decode(&content); err != nil {
		return nil, err
	}

	err := k.gateway.Set(content.Name, content.Value)
	k.attributeEvent(ctx, "set", content.Name, err)
	if err != nil {
		return protocol.SetAttrReplyContent{Status: string(gateway.KindOf(err)), Message: err.Error()}, nil
	}
	return protocol.SetAttrReplyContent{Status: string(gateway.KindOK)}, nil
}

func (k *Kernel) attributeEvent(ctx context.Context, direction, name string, err error) {
	k.observer.OnEvent(ctx, observability.NewEvent(EventAttribute, observability.LevelVerbose, "kernel.attribute", map[string]any{
		"direction": direction,
		"name":      name,
		"status":    string(gateway.KindOf(err)),
	}))
}
