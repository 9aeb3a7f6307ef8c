package router

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/evalkernel/observability"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// Subscription is one IOPub consumer with its own ordered buffer.
type Subscription struct {
	id      string
	channel *MessageChannel[*protocol.Envelope]
	router  *Router
}

func (s *Subscription) ID() string {
	return s.id
}

// Receive returns the next broadcast in publication order.
func (s *Subscription) Receive(ctx context.Context) (*protocol.Envelope, error) {
	return s.channel.Receive(ctx)
}

// Close unsubscribes. Buffered broadcasts can still be received.
func (s *Subscription) Close() {
	r := s.router

	r.subsMutex.Lock()
	_, exists := r.subscriptions[s.id]
	delete(r.subscriptions, s.id)
	r.subsMutex.Unlock()

	s.channel.Close()
	if !exists {
		return
	}

	r.metrics.RecordSubscriber(-1)
	r.observer.OnEvent(r.ctx, observability.NewEvent(EventUnsubscribe, observability.LevelVerbose, "router.Subscription", map[string]any{
		"subscriber": s.id,
	}))
}

// Subscribe registers a new IOPub consumer.
func (r *Router) Subscribe() (*Subscription, error) {
	r.subsMutex.Lock()
	defer r.subsMutex.Unlock()

	if r.ctx.Err() != nil {
		return nil, ErrClosed
	}

	sub := &Subscription{
		id:      uuid.Must(uuid.NewV7()).String(),
		channel: NewMessageChannel[*protocol.Envelope](r.ctx, r.subscriberBuffer),
		router:  r,
	}
	r.subscriptions[sub.id] = sub
	r.metrics.RecordSubscriber(1)

	r.observer.OnEvent(r.ctx, observability.NewEvent(EventSubscribe, observability.LevelVerbose, "router.Subscribe", map[string]any{
		"subscriber": sub.id,
	}))

	return sub, nil
}

// Publish broadcasts content caused by the request whose header is parent to
// every subscriber. A subscriber with a full buffer loses the message.
func (r *Router) Publish(ctx context.Context, parent protocol.Header, msgType protocol.MsgType, content any) {
	env, err := r.session.Message(msgType, content, parent)
	if err != nil {
		r.logger.ErrorContext(
			ctx,
			"failed to build broadcast",
			slog.String("msg_type", string(msgType)),
			slog.String("error", err.Error()),
		)
		return
	}

	r.subsMutex.RLock()
	defer r.subsMutex.RUnlock()

	delivered := 0
	for _, sub := range r.subscriptions {
		if sub.channel.TrySend(env) {
			delivered++
			continue
		}
		if sub.channel.IsClosed() {
			continue
		}

		r.metrics.RecordDropped(1)
		r.observer.OnEvent(ctx, observability.NewEvent(EventDropped, observability.LevelWarning, "router.Publish", map[string]any{
			"subscriber": sub.id,
			"msg_type":   string(msgType),
		}))
	}

	r.metrics.RecordBroadcast(1)
	r.logger.DebugContext(
		ctx,
		"broadcast sent",
		slog.String("msg_type", string(msgType)),
		slog.Int("subscribers", len(r.subscriptions)),
		slog.Int("delivered", delivered),
	)
}
