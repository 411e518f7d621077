// Package robot defines the shared data model for the orchestration engine:
// robot state snapshots, commands, and telemetry frames exchanged between
// the controller-side client and the robot-resident server.
package robot

import (
	"math"
	"time"
)

// Joint identifies an addressable joint on the manipulator.
type Joint string

const (
	JointLift     Joint = "lift"
	JointArm      Joint = "arm"
	JointWristYaw Joint = "wrist_yaw"
	JointHeadPan  Joint = "head_pan"
	JointHeadTilt Joint = "head_tilt"
)

// Pose is a planar base pose: position in meters plus heading in radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// DistanceTo returns the Euclidean distance between the positions of two poses.
func (p Pose) DistanceTo(other Pose) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Hypot(dx, dy)
}

// AngleTo returns the absolute heading difference to other, normalized to [0, pi].
func (p Pose) AngleTo(other Pose) float64 {
	d := math.Mod(p.Theta-other.Theta, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return math.Abs(d)
}

// Within reports whether p is inside the given position and heading
// tolerances of target. Blocking motion calls use this to decide arrival.
func (p Pose) Within(target Pose, posTol, angTol float64) bool {
	return p.DistanceTo(target) <= posTol && p.AngleTo(target) <= angTol
}

// GripperState describes the gripper aperture as a fraction: 0 is fully
// closed, 1 is fully open.
type GripperState struct {
	Position float64 `json:"position"`
	Holding  bool    `json:"holding,omitempty"`
}

// JointState holds the position and velocity of every reported joint.
type JointState struct {
	Positions  map[Joint]float64 `json:"positions"`
	Velocities map[Joint]float64 `json:"velocities,omitempty"`
}

// Clone returns a deep copy so snapshots stay immutable once emitted.
func (j JointState) Clone() JointState {
	out := JointState{
		Positions:  make(map[Joint]float64, len(j.Positions)),
		Velocities: make(map[Joint]float64, len(j.Velocities)),
	}
	for k, v := range j.Positions {
		out.Positions[k] = v
	}
	for k, v := range j.Velocities {
		out.Velocities[k] = v
	}
	return out
}

// ControlMode selects which actuator group the robot drives.
type ControlMode string

const (
	ModeNavigation   ControlMode = "navigation"
	ModeManipulation ControlMode = "manipulation"
	ModeIdle         ControlMode = "idle"
)

// StatusFlags carries robot health bits. HardwareLinkDown distinguishes
// "robot unreachable" from "robot idle" without tearing down the channel.
type StatusFlags struct {
	Homed            bool `json:"homed"`
	Runstopped       bool `json:"runstopped,omitempty"`
	HardwareLinkDown bool `json:"hardware_link_down,omitempty"`
	AtGoal           bool `json:"at_goal,omitempty"`
	MotionFailed     bool `json:"motion_failed,omitempty"`
}

// RobotState is an immutable snapshot of the robot, produced by the server
// at a fixed cadence. Seq increases monotonically per server instance so
// consumers can order snapshots and detect gaps after reconnection.
type RobotState struct {
	Pose      Pose         `json:"pose"`
	Joints    JointState   `json:"joints"`
	Gripper   GripperState `json:"gripper"`
	Mode      ControlMode  `json:"mode"`
	Flags     StatusFlags  `json:"flags"`
	Battery   float64      `json:"battery,omitempty"`
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
}
