// Package operations provides the library of reusable robot behaviors.
// Each operation implements the task.Operation capability interface; new
// behaviors are added as new variants here, never by changing the task
// manager.
package operations

import (
	"context"

	"github.com/mobile-manipulation/conductor/mapping"
	"github.com/mobile-manipulation/conductor/perception"
	"github.com/mobile-manipulation/conductor/planning"
	"github.com/mobile-manipulation/conductor/robot"
)

// Robot is the slice of the robot client that operations consume. The
// concrete client satisfies it; tests substitute fakes.
type Robot interface {
	State() robot.RobotState
	Stale() bool
	MoveTo(ctx context.Context, target robot.Pose, blocking bool) error
	MoveJoint(ctx context.Context, joint robot.Joint, value float64, blocking bool) error
	SetGripper(ctx context.Context, position float64) error
	SwitchMode(ctx context.Context, mode robot.ControlMode) error
	Subscribe(kind robot.StreamKind) (<-chan robot.TelemetryFrame, func())
	Stop(ctx context.Context) error
}

// Deps carries the collaborator handles injected into every operation. The
// agent builds one Deps per task graph before scheduling.
type Deps struct {
	Robot     Robot
	Mapper    mapping.Mapper
	Planner   planning.Planner
	Segmenter perception.Segmenter
}

// PickupState is shared between the search and manipulation operations of
// one pickup task graph: search writes the target, grasp reads it.
type PickupState struct {
	Target     *perception.Detection
	TargetPose robot.Pose
}
