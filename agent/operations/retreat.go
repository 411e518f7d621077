package operations

import (
	"context"
	"fmt"
	"math"

	"github.com/mobile-manipulation/conductor/robot"
)

// Retreat backs the base away from whatever it is facing, the standard
// recovery after a failed approach or grasp.
type Retreat struct {
	Deps
	Distance float64

	done bool
}

// NewRetreat creates a retreat of the given distance in meters.
func NewRetreat(deps Deps, distance float64) *Retreat {
	if distance <= 0 {
		distance = 0.5
	}
	return &Retreat{Deps: deps, Distance: distance}
}

func (r *Retreat) Name() string { return "retreat" }

func (r *Retreat) CanStart(ctx context.Context) bool { return true }

func (r *Retreat) Run(ctx context.Context) error {
	pose := r.Robot.State().Pose
	target := robot.Pose{
		X:     pose.X - r.Distance*math.Cos(pose.Theta),
		Y:     pose.Y - r.Distance*math.Sin(pose.Theta),
		Theta: pose.Theta,
	}
	if err := r.Robot.MoveTo(ctx, target, true); err != nil {
		return fmt.Errorf("retreat: %w", err)
	}
	r.done = true
	return nil
}

func (r *Retreat) WasSuccessful() bool { return r.done }

func (r *Retreat) Reset() { r.done = false }
