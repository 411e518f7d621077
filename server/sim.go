package server

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mobile-manipulation/conductor/robot"
)

// SimActuators is a first-order kinematic simulator: the base moves toward
// its target pose at fixed linear/angular speed, joints and gripper move at
// fixed joint speed. It stands in for the hardware driver on development
// machines and in tests.
type SimActuators struct {
	mu sync.Mutex

	pose    robot.Pose
	joints  map[robot.Joint]float64
	gripper float64
	mode    robot.ControlMode
	flags   robot.StatusFlags

	targetPose    *robot.Pose
	targetJoints  map[robot.Joint]float64
	targetGripper *float64

	// Speeds per second.
	LinearSpeed  float64
	AngularSpeed float64
	JointSpeed   float64
}

// NewSimActuators creates a simulator at the origin with default speeds.
func NewSimActuators() *SimActuators {
	return &SimActuators{
		joints: map[robot.Joint]float64{
			robot.JointLift:     0,
			robot.JointArm:      0,
			robot.JointWristYaw: 0,
			robot.JointHeadPan:  0,
			robot.JointHeadTilt: 0,
		},
		gripper:      1,
		mode:         robot.ModeIdle,
		flags:        robot.StatusFlags{Homed: true},
		targetJoints: make(map[robot.Joint]float64),
		LinearSpeed:  0.5,
		AngularSpeed: 1.0,
		JointSpeed:   0.5,
	}
}

func (a *SimActuators) Apply(cmd robot.Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch cmd.Kind {
	case robot.CommandMoveBase:
		if cmd.TargetPose == nil {
			return fmt.Errorf("move_base without target pose")
		}
		t := *cmd.TargetPose
		a.targetPose = &t
		a.flags.AtGoal = false
	case robot.CommandMoveArm:
		if cmd.TargetJoint == "" {
			return fmt.Errorf("move_arm without target joint")
		}
		a.targetJoints[cmd.TargetJoint] = cmd.TargetValue
	case robot.CommandMoveGripper:
		if cmd.TargetGripper == nil {
			return fmt.Errorf("move_gripper without target position")
		}
		v := math.Max(0, math.Min(1, *cmd.TargetGripper))
		a.targetGripper = &v
	case robot.CommandSwitchMode:
		a.mode = cmd.TargetMode
	case robot.CommandStop:
		a.haltLocked()
	case robot.CommandReset:
		a.haltLocked()
		a.pose = robot.Pose{}
		for j := range a.joints {
			a.joints[j] = 0
		}
		a.gripper = 1
		a.mode = robot.ModeIdle
	default:
		return fmt.Errorf("unknown command kind: %s", cmd.Kind)
	}
	return nil
}

func (a *SimActuators) Halt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.haltLocked()
}

func (a *SimActuators) haltLocked() {
	a.targetPose = nil
	a.targetGripper = nil
	a.targetJoints = make(map[robot.Joint]float64)
}

func (a *SimActuators) Step(dt time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sec := dt.Seconds()

	if a.targetPose != nil {
		a.stepBase(sec)
	}
	for joint, target := range a.targetJoints {
		a.joints[joint] = approach(a.joints[joint], target, a.JointSpeed*sec)
		if a.joints[joint] == target {
			delete(a.targetJoints, joint)
		}
	}
	if a.targetGripper != nil {
		a.gripper = approach(a.gripper, *a.targetGripper, a.JointSpeed*sec)
		if a.gripper == *a.targetGripper {
			a.targetGripper = nil
		}
	}
}

func (a *SimActuators) stepBase(sec float64) {
	target := *a.targetPose
	dist := a.pose.DistanceTo(target)
	step := a.LinearSpeed * sec

	if dist <= step {
		a.pose.X, a.pose.Y = target.X, target.Y
	} else {
		a.pose.X += (target.X - a.pose.X) / dist * step
		a.pose.Y += (target.Y - a.pose.Y) / dist * step
	}

	a.pose.Theta = approachAngle(a.pose.Theta, target.Theta, a.AngularSpeed*sec)

	if a.pose.Within(target, 1e-6, 1e-6) {
		a.targetPose = nil
		a.flags.AtGoal = true
	}
}

func (a *SimActuators) Snapshot() robot.RobotState {
	a.mu.Lock()
	defer a.mu.Unlock()

	joints := robot.JointState{Positions: make(map[robot.Joint]float64, len(a.joints))}
	for j, v := range a.joints {
		joints.Positions[j] = v
	}

	return robot.RobotState{
		Pose:    a.pose,
		Joints:  joints,
		Gripper: robot.GripperState{Position: a.gripper},
		Mode:    a.mode,
		Flags:   a.flags,
		Battery: 1,
	}
}

// SetLinkDown marks the hardware link as lost or restored. The server keeps
// publishing state frames with the flag set, so remote clients can tell
// "robot unreachable" from "robot idle".
func (a *SimActuators) SetLinkDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flags.HardwareLinkDown = down
}

// Moving reports whether any motion target is outstanding.
func (a *SimActuators) Moving() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetPose != nil || a.targetGripper != nil || len(a.targetJoints) > 0
}

func approach(current, target, step float64) float64 {
	d := target - current
	if math.Abs(d) <= step {
		return target
	}
	if d > 0 {
		return current + step
	}
	return current - step
}

func approachAngle(current, target, step float64) float64 {
	d := math.Mod(target-current, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	if math.Abs(d) <= step {
		return target
	}
	if d > 0 {
		return current + step
	}
	return current - step
}

// SimSensors produces small synthetic payloads for the full telemetry
// stream so perception and mapping paths can be exercised without cameras.
type SimSensors struct {
	Frame []byte
	Cloud []byte
}

func (s *SimSensors) Capture() ([]byte, []byte) {
	return s.Frame, s.Cloud
}
