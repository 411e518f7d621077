package operations

import (
	"context"
	"fmt"

	"github.com/mobile-manipulation/conductor/robot"
)

// Grasp approaches the searched target, switches to manipulation mode,
// extends the arm, and closes the gripper on the object.
type Grasp struct {
	Deps
	State *PickupState

	LiftHeight   float64
	ArmExtension float64

	closed bool
}

// NewGrasp creates a grasp reading its target from state.
func NewGrasp(deps Deps, state *PickupState) *Grasp {
	return &Grasp{
		Deps:         deps,
		State:        state,
		LiftHeight:   0.6,
		ArmExtension: 0.3,
	}
}

func (g *Grasp) Name() string { return "grasp" }

// CanStart requires that search already produced a target.
func (g *Grasp) CanStart(ctx context.Context) bool {
	return g.State != nil && g.State.Target != nil
}

func (g *Grasp) Run(ctx context.Context) error {
	if err := g.Robot.MoveTo(ctx, g.State.TargetPose, true); err != nil {
		return fmt.Errorf("approach target: %w", err)
	}
	if err := g.Robot.SwitchMode(ctx, robot.ModeManipulation); err != nil {
		return err
	}
	if err := g.Robot.SetGripper(ctx, 1); err != nil {
		return fmt.Errorf("pre-open gripper: %w", err)
	}
	if err := g.Robot.MoveJoint(ctx, robot.JointLift, g.LiftHeight, true); err != nil {
		return fmt.Errorf("lift: %w", err)
	}
	if err := g.Robot.MoveJoint(ctx, robot.JointArm, g.ArmExtension, true); err != nil {
		return fmt.Errorf("extend arm: %w", err)
	}
	if err := g.Robot.SetGripper(ctx, 0); err != nil {
		return fmt.Errorf("close gripper: %w", err)
	}
	g.closed = true
	return nil
}

// WasSuccessful checks the gripper actually closed, independent of what
// the body reported.
func (g *Grasp) WasSuccessful() bool {
	if !g.closed {
		return false
	}
	grip := g.Robot.State().Gripper
	return grip.Position <= 0.1 || grip.Holding
}

func (g *Grasp) Reset() { g.closed = false }
