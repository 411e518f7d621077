package task

import "github.com/mobile-manipulation/conductor/observability"

// Event types emitted during a task run.
const (
	EventRunStart    observability.EventType = "task.run.start"
	EventRunComplete observability.EventType = "task.run.complete"
	EventOpStart     observability.EventType = "task.op.start"
	EventOpSkipped   observability.EventType = "task.op.skipped"
	EventOpComplete  observability.EventType = "task.op.complete"
	EventRetry       observability.EventType = "task.retry"
	EventAborted     observability.EventType = "task.aborted"
)
