package task

import (
	"context"
	"time"
)

// Operation is the atomic unit of robot behavior: a pre-condition check, an
// execution body, and a post-condition check evaluated independently of
// what the body reports.
//
// Run must be safely abortable: it checks ctx at bounded intervals and
// never busy-waits past its deadline. Timeouts are enforced by the Manager
// wrapping Run, so a hung body is forcibly treated as timed out even if it
// never checks its own deadline.
type Operation interface {
	// Name identifies the operation within a graph.
	Name() string

	// CanStart is the pre-condition, evaluated just before scheduling. If
	// false the manager records an immediate failure without running the
	// body.
	CanStart(ctx context.Context) bool

	// Run executes the behavior body. A nil return is a claim of success
	// that is still subject to WasSuccessful.
	Run(ctx context.Context) error

	// WasSuccessful is the post-condition, evaluated after Run returns. A
	// body that claims success but leaves the world in a disqualifying
	// state still yields a failure.
	WasSuccessful() bool

	// Reset returns the operation to a runnable state before a retry.
	Reset()
}

// TimeoutProvider lets an operation declare its own run budget. Operations
// without it get the manager's default timeout.
type TimeoutProvider interface {
	Timeout() time.Duration
}

// FuncOperation adapts plain functions into an Operation, the counterpart
// of wrapping a closure as a graph node. Nil CanStartFn means "always
// startable"; nil SuccessFn means "trust the body's error return".
type FuncOperation struct {
	OpName     string
	CanStartFn func(ctx context.Context) bool
	RunFn      func(ctx context.Context) error
	SuccessFn  func() bool
	ResetFn    func()
	RunTimeout time.Duration

	ran    bool
	runErr error
}

// NewFuncOperation creates a FuncOperation with just a name and body.
func NewFuncOperation(name string, run func(ctx context.Context) error) *FuncOperation {
	return &FuncOperation{OpName: name, RunFn: run}
}

func (f *FuncOperation) Name() string { return f.OpName }

func (f *FuncOperation) CanStart(ctx context.Context) bool {
	if f.CanStartFn == nil {
		return true
	}
	return f.CanStartFn(ctx)
}

func (f *FuncOperation) Run(ctx context.Context) error {
	f.ran = true
	f.runErr = f.RunFn(ctx)
	return f.runErr
}

func (f *FuncOperation) WasSuccessful() bool {
	if f.SuccessFn != nil {
		return f.SuccessFn()
	}
	return f.ran && f.runErr == nil
}

func (f *FuncOperation) Reset() {
	f.ran = false
	f.runErr = nil
	if f.ResetFn != nil {
		f.ResetFn()
	}
}

// Timeout implements TimeoutProvider when RunTimeout is set.
func (f *FuncOperation) Timeout() time.Duration { return f.RunTimeout }
