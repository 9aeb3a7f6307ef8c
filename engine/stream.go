package engine

import (
	"context"

	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// streamWriter turns writes from running code into stream broadcasts.
type streamWriter struct {
	ctx    context.Context
	engine *Engine
	parent protocol.Header
	name   string
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.engine.publisher.Publish(w.ctx, w.parent, protocol.Stream, protocol.StreamContent{
		Name: w.name,
		Data: string(p),
	})
	return len(p), nil
}
