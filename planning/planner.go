// Package planning defines the narrow interface to the motion-planning
// collaborator: a pure function from start, goal, and map to a sequence of
// waypoints. The sampling-based planners themselves live outside the core.
package planning

import (
	"errors"
	"math"

	"github.com/mobile-manipulation/conductor/robot"
)

// ErrNoPathFound is returned when no collision-free path exists. The
// calling operation decides between retry and failure.
var ErrNoPathFound = errors.New("no path found")

// Map is the planner's read-only view of the world.
type Map interface {
	// Occupied reports whether the position of p is known to be blocked.
	Occupied(p robot.Pose) bool
}

// Planner produces a waypoint sequence from start to goal. Implementations
// are pure functions of their inputs with no side effects, safe to call
// from inside an operation body.
type Planner interface {
	Plan(start, goal robot.Pose, m Map) ([]robot.Pose, error)
}

// LinePlanner interpolates a straight line from start to goal, sampling at
// StepSize, and fails with ErrNoPathFound if any sample is occupied. It is
// the simulation stand-in for the real sampling-based planner.
type LinePlanner struct {
	StepSize float64
}

// NewLinePlanner creates a LinePlanner with a default 0.25m step.
func NewLinePlanner() *LinePlanner {
	return &LinePlanner{StepSize: 0.25}
}

func (p *LinePlanner) Plan(start, goal robot.Pose, m Map) ([]robot.Pose, error) {
	step := p.StepSize
	if step <= 0 {
		step = 0.25
	}

	dist := start.DistanceTo(goal)
	n := int(math.Ceil(dist/step)) + 1

	waypoints := make([]robot.Pose, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		wp := robot.Pose{
			X:     start.X + (goal.X-start.X)*t,
			Y:     start.Y + (goal.Y-start.Y)*t,
			Theta: goal.Theta,
		}
		if m != nil && m.Occupied(wp) {
			return nil, ErrNoPathFound
		}
		waypoints = append(waypoints, wp)
	}
	return waypoints, nil
}
