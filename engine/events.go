package engine

import "github.com/tailored-agentic-units/evalkernel/observability"

// Engine event types.
const (
	EventExecuteStart    observability.EventType = "engine.execute.start"
	EventExecuteComplete observability.EventType = "engine.execute.complete"
	EventExecuteError    observability.EventType = "engine.execute.error"
	EventExecuteAbort    observability.EventType = "engine.execute.abort"
	EventHookPruned      observability.EventType = "engine.hook.pruned"
	EventHistoryFailed   observability.EventType = "engine.history.failed"
)
