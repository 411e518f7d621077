package operations

import (
	"context"
	"fmt"
	"math"

	"github.com/mobile-manipulation/conductor/robot"
)

// RotateInPlace spins the base through a full turn in Steps increments,
// giving the mapper a panoramic sweep from the current position.
type RotateInPlace struct {
	Deps
	Steps int

	done bool
}

// NewRotateInPlace creates a rotation with the given number of stops.
func NewRotateInPlace(deps Deps, steps int) *RotateInPlace {
	if steps <= 0 {
		steps = 8
	}
	return &RotateInPlace{Deps: deps, Steps: steps}
}

func (r *RotateInPlace) Name() string { return "rotate_in_place" }

func (r *RotateInPlace) CanStart(ctx context.Context) bool { return true }

func (r *RotateInPlace) Run(ctx context.Context) error {
	start := r.Robot.State().Pose
	step := 2 * math.Pi / float64(r.Steps)

	for i := 1; i <= r.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := robot.Pose{
			X:     start.X,
			Y:     start.Y,
			Theta: start.Theta + step*float64(i),
		}
		if err := r.Robot.MoveTo(ctx, target, true); err != nil {
			return fmt.Errorf("rotation step %d/%d: %w", i, r.Steps, err)
		}
	}
	r.done = true
	return nil
}

func (r *RotateInPlace) WasSuccessful() bool { return r.done }

func (r *RotateInPlace) Reset() { r.done = false }
