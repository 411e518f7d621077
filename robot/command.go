package robot

import "time"

// CommandKind is the discrete set of actions the server understands.
type CommandKind string

const (
	CommandMoveBase    CommandKind = "move_base"
	CommandMoveArm     CommandKind = "move_arm"
	CommandMoveGripper CommandKind = "move_gripper"
	CommandSwitchMode  CommandKind = "switch_mode"
	CommandStop        CommandKind = "stop"
	CommandReset       CommandKind = "reset"
)

// Command is a single instruction for the robot server. The client assigns
// Seq; the server applies commands in strictly increasing Seq order and
// rejects stale or duplicate sequence numbers.
type Command struct {
	Seq  uint64      `json:"seq"`
	Kind CommandKind `json:"kind"`

	// Target fields; which ones are meaningful depends on Kind.
	TargetPose    *Pose       `json:"target_pose,omitempty"`
	TargetJoint   Joint       `json:"target_joint,omitempty"`
	TargetValue   float64     `json:"target_value,omitempty"`
	TargetGripper *float64    `json:"target_gripper,omitempty"`
	TargetMode    ControlMode `json:"target_mode,omitempty"`

	Issued time.Time `json:"issued"`
}

// Motion reports whether the command moves an actuator. Motion commands are
// deduplicated by sequence number on the server; everything else is safe to
// resend.
func (c Command) Motion() bool {
	switch c.Kind {
	case CommandMoveBase, CommandMoveArm, CommandMoveGripper:
		return true
	}
	return false
}

// Actuator returns the advisory-lock name guarding the actuator this
// command drives, or "" for commands that touch no actuator.
func (c Command) Actuator() string {
	switch c.Kind {
	case CommandMoveBase:
		return ActuatorBase
	case CommandMoveArm:
		return ActuatorArm
	case CommandMoveGripper:
		return ActuatorGripper
	}
	return ""
}

// Advisory lock names for the three actuator groups.
const (
	ActuatorBase    = "base"
	ActuatorArm     = "arm"
	ActuatorGripper = "gripper"
)
