package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mobile-manipulation/conductor/mapping"
	"github.com/mobile-manipulation/conductor/planning"
	"github.com/mobile-manipulation/conductor/robot"
)

// Navigate plans a path to Goal and follows it waypoint by waypoint with
// blocking base moves. Planning failures are retried once after the current
// map settles; a second ErrNoPathFound fails the operation.
type Navigate struct {
	Deps
	Goal       robot.Pose
	PosTol     float64
	AngTol     float64
	RunTimeout time.Duration

	arrived bool
}

// NewNavigate creates a Navigate toward goal with default tolerances.
func NewNavigate(deps Deps, goal robot.Pose) *Navigate {
	return &Navigate{
		Deps:   deps,
		Goal:   goal,
		PosTol: 0.15,
		AngTol: 0.3,
	}
}

func (n *Navigate) Name() string { return "navigate" }

// CanStart requires a fresh state snapshot; navigating on stale telemetry
// after a reconnection gap risks planning from the wrong pose.
func (n *Navigate) CanStart(ctx context.Context) bool {
	return !n.Robot.Stale()
}

func (n *Navigate) Run(ctx context.Context) error {
	start := n.Robot.State().Pose

	waypoints, err := n.Planner.Plan(start, n.Goal, n.Mapper)
	if errors.Is(err, planning.ErrNoPathFound) {
		// One retry from the latest pose; the map may have filled in.
		waypoints, err = n.Planner.Plan(n.Robot.State().Pose, n.Goal, n.Mapper)
	}
	if err != nil {
		return fmt.Errorf("navigate to (%.2f, %.2f): %w", n.Goal.X, n.Goal.Y, err)
	}

	for _, wp := range waypoints {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.Robot.MoveTo(ctx, wp, true); err != nil {
			return fmt.Errorf("waypoint (%.2f, %.2f): %w", wp.X, wp.Y, err)
		}
	}

	n.arrived = true
	return nil
}

// WasSuccessful re-checks the world: the robot must actually be within
// tolerance of the goal, whatever the body reported.
func (n *Navigate) WasSuccessful() bool {
	return n.arrived && n.Robot.State().Pose.Within(n.Goal, n.PosTol, n.AngTol)
}

func (n *Navigate) Reset() { n.arrived = false }

// Timeout implements task.TimeoutProvider when RunTimeout is set.
func (n *Navigate) Timeout() time.Duration { return n.RunTimeout }

// NavigateToFrontier navigates to the nearest frontier cell in Region,
// re-querying the map on every attempt. Its pre-condition fails when no
// frontier remains, which exploration graphs route to their finishing edge.
type NavigateToFrontier struct {
	Deps
	Region mapping.Region
	PosTol float64

	goal    *robot.Pose
	arrived bool
}

// NewNavigateToFrontier creates the exploration step over the given region.
func NewNavigateToFrontier(deps Deps, region mapping.Region) *NavigateToFrontier {
	return &NavigateToFrontier{Deps: deps, Region: region, PosTol: 0.3}
}

func (n *NavigateToFrontier) Name() string { return "navigate_frontier" }

func (n *NavigateToFrontier) CanStart(ctx context.Context) bool {
	if n.Robot.Stale() {
		return false
	}
	goal := n.nearestFrontier()
	n.goal = goal
	return goal != nil
}

func (n *NavigateToFrontier) nearestFrontier() *robot.Pose {
	here := n.Robot.State().Pose
	summary := n.Mapper.Query(n.Region)

	var best *robot.Pose
	bestDist := 0.0
	for i := range summary.Frontier {
		f := summary.Frontier[i]
		d := here.DistanceTo(f)
		if d < n.PosTol {
			continue // already there
		}
		if best == nil || d < bestDist {
			best, bestDist = &f, d
		}
	}
	return best
}

func (n *NavigateToFrontier) Run(ctx context.Context) error {
	if n.goal == nil {
		return fmt.Errorf("no frontier selected")
	}

	waypoints, err := n.Planner.Plan(n.Robot.State().Pose, *n.goal, n.Mapper)
	if err != nil {
		return fmt.Errorf("frontier (%.2f, %.2f): %w", n.goal.X, n.goal.Y, err)
	}
	for _, wp := range waypoints {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.Robot.MoveTo(ctx, wp, true); err != nil {
			return err
		}
	}
	n.arrived = true
	return nil
}

func (n *NavigateToFrontier) WasSuccessful() bool {
	return n.arrived && n.goal != nil &&
		n.Robot.State().Pose.DistanceTo(*n.goal) <= n.PosTol
}

func (n *NavigateToFrontier) Reset() {
	n.goal = nil
	n.arrived = false
}
