package router

import "github.com/tailored-agentic-units/evalkernel/observability"

const (
	EventDispatch    observability.EventType = "router.dispatch"
	EventReply       observability.EventType = "router.reply"
	EventCrash       observability.EventType = "router.crash"
	EventDropped     observability.EventType = "router.broadcast.dropped"
	EventSubscribe   observability.EventType = "router.subscribe"
	EventUnsubscribe observability.EventType = "router.unsubscribe"
	EventInput       observability.EventType = "router.input"
)
