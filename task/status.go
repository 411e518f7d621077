// Package task implements the orchestration core: the operation state
// machine, the task graph with success/failure transitions, and the manager
// that drives a graph to a terminal outcome with retry, timeout, and abort
// handling.
package task

// Status is the lifecycle state of an operation within a task run.
//
// Transitions: NotStarted → Running on scheduling, then Running → exactly
// one of the terminal states. Terminal states are final; a retry resets the
// operation before rescheduling it.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
	StatusTimedOut   Status = "timed_out"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusTimedOut:
		return true
	}
	return false
}
