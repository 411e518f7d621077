package task

import (
	"errors"
	"fmt"
)

// ErrPreconditionFailed marks an operation whose CanStart returned false.
// The body is never run and the failure edge is followed without side
// effects.
var ErrPreconditionFailed = errors.New("precondition failed")

// ErrRetryBudgetExhausted ends a run whose retry loop hit its bound.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// ErrStepBudgetExhausted ends a run that exceeded the global step budget.
var ErrStepBudgetExhausted = errors.New("step budget exhausted")

// ExecutionError wraps a failed run with the operation and status where it
// ended. It unwraps to the underlying cause, so errors.Is works against the
// sentinels above and against context errors.
type ExecutionError struct {
	Graph     string
	Operation string
	Status    Status
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s: operation %s ended %s: %v", e.Graph, e.Operation, e.Status, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
