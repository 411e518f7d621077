package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mobile-manipulation/conductor/observability"
)

// Config holds manager parameters.
type Config struct {
	// DefaultTimeout bounds Run for operations that do not declare their
	// own budget via TimeoutProvider.
	DefaultTimeout time.Duration `json:"default_timeout,omitempty"`

	// MaxSteps is the global budget on operation executions per run; it
	// backstops graphs whose retry counters are individually bounded but
	// jointly large.
	MaxSteps int `json:"max_steps,omitempty"`

	Observer string `json:"observer,omitempty"`
}

// DefaultConfig returns manager defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		MaxSteps:       100,
		Observer:       "slog",
	}
}

// Merge applies non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.DefaultTimeout > 0 {
		c.DefaultTimeout = source.DefaultTimeout
	}
	if source.MaxSteps > 0 {
		c.MaxSteps = source.MaxSteps
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// Outcome records the terminal state of one operation execution. Outcomes
// are never dropped: every scheduled operation contributes exactly one.
type Outcome struct {
	Operation string
	Status    Status
	Err       error
	Duration  time.Duration
}

// RunResult is the overall result of driving a graph to a terminal marker.
type RunResult struct {
	RunID    string
	Graph    string
	Status   Status
	Outcomes []Outcome
	Steps    int
	Duration time.Duration
}

// Manager drives task graphs to terminal outcomes. Within one run exactly
// one operation is running at a time; independent runs may proceed
// concurrently on the same Manager.
//
// Aborts propagate through the run context: cancelling the context passed
// to Execute is observed by the running operation within one scheduling
// tick and ends the run with StatusAborted.
type Manager struct {
	cfg      Config
	observer observability.Observer
}

// NewManager creates a Manager, resolving the observer from the registry.
func NewManager(cfg Config) (*Manager, error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}
	return &Manager{cfg: cfg, observer: observer}, nil
}

// NewManagerWithObserver creates a Manager with an explicit observer.
func NewManagerWithObserver(cfg Config, observer observability.Observer) *Manager {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Manager{cfg: cfg, observer: observer}
}

// Execute walks the graph from its entry node until it reaches Done, Fail,
// an abort, or an exhausted budget. The returned error is nil only when the
// overall status is StatusSucceeded; RunResult is populated either way.
func (m *Manager) Execute(ctx context.Context, g *Graph) (*RunResult, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID: uuid.Must(uuid.NewV7()).String(),
		Graph: g.Name(),
	}
	start := time.Now()

	observability.Emit(ctx, m.observer, EventRunStart, observability.LevelInfo, "task.manager", map[string]any{
		"run_id": result.RunID,
		"graph":  g.Name(),
		"entry":  g.Entry(),
	})

	traversals := make(map[string]int)
	scheduled := make(map[string]int)
	current := g.Entry()

	finish := func(status Status, cause error) (*RunResult, error) {
		result.Status = status
		result.Duration = time.Since(start)
		observability.Emit(ctx, m.observer, EventRunComplete, observability.LevelInfo, "task.manager", map[string]any{
			"run_id": result.RunID,
			"graph":  g.Name(),
			"status": string(status),
			"steps":  result.Steps,
		})
		if status == StatusSucceeded {
			return result, nil
		}
		op := ""
		if n := len(result.Outcomes); n > 0 {
			op = result.Outcomes[n-1].Operation
		}
		return result, &ExecutionError{Graph: g.Name(), Operation: op, Status: status, Err: cause}
	}

	for {
		if result.Steps >= m.cfg.MaxSteps {
			return finish(StatusFailed, ErrStepBudgetExhausted)
		}

		op, ok := g.node(current)
		if !ok {
			return finish(StatusFailed, fmt.Errorf("graph %s: missing node %s", g.Name(), current))
		}
		tr, ok := g.transition(current)
		if !ok {
			return finish(StatusFailed, fmt.Errorf("graph %s: missing transition for %s", g.Name(), current))
		}

		if scheduled[current] > 0 {
			op.Reset()
		}
		scheduled[current]++
		result.Steps++

		outcome := m.runOperation(ctx, op)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Status == StatusAborted {
			observability.Emit(ctx, m.observer, EventAborted, observability.LevelWarning, "task.manager", map[string]any{
				"run_id":    result.RunID,
				"operation": op.Name(),
			})
			return finish(StatusAborted, outcome.Err)
		}

		edge := tr.Failure
		if outcome.Status == StatusSucceeded {
			edge = tr.Success
		}

		if IsTerminal(edge.To) {
			if edge.To == Done {
				return finish(StatusSucceeded, nil)
			}
			return finish(StatusFailed, outcome.Err)
		}

		key := current + "->" + edge.To
		traversals[key]++
		if edge.Retries > 0 {
			if traversals[key] > edge.Retries {
				return finish(StatusFailed, fmt.Errorf("%w: edge %s", ErrRetryBudgetExhausted, key))
			}
			observability.Emit(ctx, m.observer, EventRetry, observability.LevelInfo, "task.manager", map[string]any{
				"run_id":  result.RunID,
				"edge":    key,
				"attempt": traversals[key],
				"budget":  edge.Retries,
			})
		}

		current = edge.To
	}
}

// runOperation executes one operation under its timeout: pre-condition,
// body in a goroutine so a hung body is forcibly timed out, then the
// post-condition folded into the final status.
func (m *Manager) runOperation(ctx context.Context, op Operation) Outcome {
	started := time.Now()

	if !op.CanStart(ctx) {
		observability.Emit(ctx, m.observer, EventOpSkipped, observability.LevelWarning, "task.manager", map[string]any{
			"operation": op.Name(),
			"reason":    "precondition",
		})
		return Outcome{Operation: op.Name(), Status: StatusFailed, Err: ErrPreconditionFailed}
	}

	timeout := m.cfg.DefaultTimeout
	if tp, ok := op.(TimeoutProvider); ok && tp.Timeout() > 0 {
		timeout = tp.Timeout()
	}

	observability.Emit(ctx, m.observer, EventOpStart, observability.LevelInfo, "task.manager", map[string]any{
		"operation": op.Name(),
		"timeout":   timeout.String(),
	})

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op.Run(opCtx)
	}()

	var status Status
	var runErr error

	select {
	case runErr = <-done:
		switch {
		case runErr == nil:
			if op.WasSuccessful() {
				status = StatusSucceeded
			} else {
				status = StatusFailed
				runErr = fmt.Errorf("operation %s: postcondition not met", op.Name())
			}
		case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
			status = StatusAborted
		case errors.Is(runErr, context.DeadlineExceeded):
			status = StatusTimedOut
		default:
			status = StatusFailed
		}
	case <-opCtx.Done():
		// The body did not return in time. Do not wait for it; the goroutine
		// drains into the buffered channel when it eventually exits.
		if ctx.Err() != nil {
			status = StatusAborted
			runErr = ctx.Err()
		} else {
			status = StatusTimedOut
			runErr = context.DeadlineExceeded
		}
	}

	outcome := Outcome{
		Operation: op.Name(),
		Status:    status,
		Err:       runErr,
		Duration:  time.Since(started),
	}

	observability.Emit(ctx, m.observer, EventOpComplete, observability.LevelInfo, "task.manager", map[string]any{
		"operation": op.Name(),
		"status":    string(status),
		"duration":  outcome.Duration.String(),
	})

	return outcome
}
