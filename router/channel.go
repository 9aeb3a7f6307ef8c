package router

import (
	"context"
	"sync"
)

// MessageChannel is a bounded, context-aware queue. Sends after Close are
// refused instead of panicking, so producers never need to coordinate with
// the consumer's lifetime.
type MessageChannel[T any] struct {
	channel    chan T
	context    context.Context
	bufferSize int

	closed bool
	mu     sync.RWMutex
}

func NewMessageChannel[T any](ctx context.Context, bufferSize int) *MessageChannel[T] {
	return &MessageChannel[T]{
		channel:    make(chan T, bufferSize),
		context:    ctx,
		bufferSize: bufferSize,
	}
}

// Send blocks until the message is queued, ctx ends or the channel closes.
func (mc *MessageChannel[T]) Send(ctx context.Context, message T) error {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.closed {
		return ErrClosed
	}

	select {
	case mc.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.context.Done():
		return mc.context.Err()
	}
}

// TrySend queues message only if there is room.
func (mc *MessageChannel[T]) TrySend(message T) bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.closed {
		return false
	}

	select {
	case mc.channel <- message:
		return true
	default:
		return false
	}
}

// Receive waits for the next message. A closed and drained channel reports
// ErrClosed.
func (mc *MessageChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case message, ok := <-mc.channel:
		if !ok {
			return zero, ErrClosed
		}
		return message, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-mc.context.Done():
		return zero, mc.context.Err()
	}
}

func (mc *MessageChannel[T]) TryReceive() (T, bool) {
	select {
	case message, ok := <-mc.channel:
		return message, ok
	default:
		var zero T
		return zero, false
	}
}

// Close refuses further sends. Queued messages can still be received.
func (mc *MessageChannel[T]) Close() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.closed {
		mc.closed = true
		close(mc.channel)
	}
}

func (mc *MessageChannel[T]) IsClosed() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.closed
}

func (mc *MessageChannel[T]) BufferSize() int {
	return mc.bufferSize
}

func (mc *MessageChannel[T]) QueueLength() int {
	return len(mc.channel)
}
