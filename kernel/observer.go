package kernel

import "github.com/tailored-agentic-units/evalkernel/observability"

// Kernel lifecycle event types.
const (
	EventListening   observability.EventType = "kernel.listening"
	EventShutdown    observability.EventType = "kernel.shutdown"
	EventCrash       observability.EventType = "kernel.crash"
	EventInterrupt   observability.EventType = "kernel.interrupt"
	EventAttribute   observability.EventType = "kernel.attribute"
	EventServeFailed observability.EventType = "kernel.serve.failed"
)
