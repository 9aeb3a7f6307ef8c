package observability

import (
	"context"
	"sync"
)

// CaptureObserver records every event it receives. It is used by tests and
// by tooling that inspects a kernel's event trail.
type CaptureObserver struct {
	mu     sync.Mutex
	events []Event
}

func (c *CaptureObserver) OnEvent(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the recorded events.
func (c *CaptureObserver) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Types returns the recorded event types in order.
func (c *CaptureObserver) Types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]EventType, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}
