package operations

import (
	"context"
	"fmt"

	"github.com/mobile-manipulation/conductor/robot"
)

// Place carries a held object to Target and releases it.
type Place struct {
	Deps
	Target robot.Pose

	released bool
}

// NewPlace creates a place at target.
func NewPlace(deps Deps, target robot.Pose) *Place {
	return &Place{Deps: deps, Target: target}
}

func (p *Place) Name() string { return "place" }

// CanStart requires something in the gripper.
func (p *Place) CanStart(ctx context.Context) bool {
	grip := p.Robot.State().Gripper
	return grip.Position <= 0.1 || grip.Holding
}

func (p *Place) Run(ctx context.Context) error {
	if err := p.Robot.SwitchMode(ctx, robot.ModeNavigation); err != nil {
		return err
	}
	if err := p.Robot.MoveTo(ctx, p.Target, true); err != nil {
		return fmt.Errorf("carry to target: %w", err)
	}
	if err := p.Robot.SwitchMode(ctx, robot.ModeManipulation); err != nil {
		return err
	}
	if err := p.Robot.SetGripper(ctx, 1); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	p.released = true
	return nil
}

func (p *Place) WasSuccessful() bool {
	return p.released && p.Robot.State().Gripper.Position >= 0.9
}

func (p *Place) Reset() { p.released = false }
