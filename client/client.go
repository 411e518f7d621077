// Package client implements the controller-side robot facade on top of a
// transport channel: motion commands with strictly increasing sequence
// numbers, blocking moves gated on telemetry, per-actuator advisory locks,
// and a demultiplexer that protects consumers from replayed or gapped
// telemetry after reconnection.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mobile-manipulation/conductor/observability"
	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/transport"
)

// ErrMotionTimeout is returned by a blocking move that did not reach its
// target within the configured timeout.
var ErrMotionTimeout = errors.New("motion timeout")

// ErrMoveAborted is returned by a blocking move pre-empted by Stop.
var ErrMoveAborted = errors.New("move aborted")

// ErrActuatorBusy is returned when another caller holds an actuator lock
// past the bounded wait.
var ErrActuatorBusy = errors.New("actuator busy")

// Event types emitted by the client.
const (
	EventSeqRegression observability.EventType = "client.telemetry.regression"
	EventSeqGap        observability.EventType = "client.telemetry.gap"
	EventCmdRejected   observability.EventType = "client.command.rejected"
)

// Config holds client parameters.
type Config struct {
	// PositionTolerance and AngleTolerance define arrival for blocking moves.
	PositionTolerance float64 `json:"position_tolerance,omitempty"`
	AngleTolerance    float64 `json:"angle_tolerance,omitempty"`
	JointTolerance    float64 `json:"joint_tolerance,omitempty"`

	// MotionTimeout bounds blocking moves.
	MotionTimeout time.Duration `json:"motion_timeout,omitempty"`

	// LockWait bounds how long a caller waits for a contended actuator
	// before failing with ErrActuatorBusy.
	LockWait time.Duration `json:"lock_wait,omitempty"`

	// PollInterval is the cadence at which blocking moves re-check state
	// and cancellation.
	PollInterval time.Duration `json:"poll_interval,omitempty"`

	Observer string `json:"observer,omitempty"`
}

// DefaultConfig returns client defaults.
func DefaultConfig() Config {
	return Config{
		PositionTolerance: 0.1,
		AngleTolerance:    0.2,
		JointTolerance:    0.02,
		MotionTimeout:     30 * time.Second,
		LockWait:          30 * time.Second,
		PollInterval:      50 * time.Millisecond,
		Observer:          "slog",
	}
}

// Merge applies non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.PositionTolerance > 0 {
		c.PositionTolerance = source.PositionTolerance
	}
	if source.AngleTolerance > 0 {
		c.AngleTolerance = source.AngleTolerance
	}
	if source.JointTolerance > 0 {
		c.JointTolerance = source.JointTolerance
	}
	if source.MotionTimeout > 0 {
		c.MotionTimeout = source.MotionTimeout
	}
	if source.LockWait > 0 {
		c.LockWait = source.LockWait
	}
	if source.PollInterval > 0 {
		c.PollInterval = source.PollInterval
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// Client is the robot-control facade. All methods are safe for concurrent
// use; exclusivity over actuators is advisory via per-actuator locks held
// for the duration of blocking moves.
type Client struct {
	channel  transport.Channel
	cfg      Config
	observer observability.Observer

	seq atomic.Uint64

	mu      sync.RWMutex
	last    robot.RobotState
	lastSeq uint64
	stale   bool

	locks *lockTable

	stopMu sync.Mutex
	stopCh chan struct{}

	subsMu sync.Mutex
	subs   map[robot.StreamKind][]chan robot.TelemetryFrame

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Client over the given channel and starts the telemetry
// demultiplexer.
func New(channel transport.Channel, cfg Config) (*Client, error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	c := &Client{
		channel:  channel,
		cfg:      cfg,
		observer: observer,
		locks:    newLockTable(),
		stopCh:   make(chan struct{}),
		subs:     make(map[robot.StreamKind][]chan robot.TelemetryFrame),
		done:     make(chan struct{}),
	}

	c.wg.Add(3)
	go c.demux(robot.StreamState)
	go c.demux(robot.StreamFull)
	go c.watchRejections()

	return c, nil
}

// demux reads one telemetry stream, filters sequence regressions, flags
// gaps, keeps the latest state, and fans frames out to subscribers.
func (c *Client) demux(kind robot.StreamKind) {
	defer c.wg.Done()
	stream := c.channel.Receive(kind)
	for {
		select {
		case <-c.done:
			return
		case frame, ok := <-stream:
			if !ok {
				return
			}
			if !c.accept(frame) {
				continue
			}
			c.fanout(kind, frame)
		}
	}
}

// accept applies the replay/gap policy and updates the latest state.
// Regressed frames are dropped with a warning; they are replay artifacts
// after reconnection, not errors.
func (c *Client) accept(frame robot.TelemetryFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := frame.Seq()
	switch {
	case seq < c.lastSeq:
		observability.Emit(context.Background(), c.observer, EventSeqRegression,
			observability.LevelWarning, "client", map[string]any{
				"seq":      seq,
				"last_seq": c.lastSeq,
			})
		return false
	case c.lastSeq > 0 && seq > c.lastSeq+1:
		// Gap after reconnection: state is stale until consumers observe
		// this fresh frame.
		observability.Emit(context.Background(), c.observer, EventSeqGap,
			observability.LevelInfo, "client", map[string]any{
				"seq":      seq,
				"last_seq": c.lastSeq,
				"missed":   seq - c.lastSeq - 1,
			})
		c.stale = true
	default:
		c.stale = false
	}

	c.lastSeq = seq
	c.last = frame.State
	return true
}

func (c *Client) fanout(kind robot.StreamKind, frame robot.TelemetryFrame) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs[kind] {
		select {
		case sub <- frame:
		default:
		}
	}
}

func (c *Client) watchRejections() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case rej, ok := <-c.channel.Rejections():
			if !ok {
				return
			}
			// Logged and dropped: stale commands are not retried.
			observability.Emit(context.Background(), c.observer, EventCmdRejected,
				observability.LevelWarning, "client", map[string]any{
					"seq":      rej.Seq,
					"last_seq": rej.LastSeq,
					"reason":   rej.Reason,
				})
		}
	}
}

// State returns the most recent robot state snapshot.
func (c *Client) State() robot.RobotState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Stale reports whether the latest state followed a telemetry gap and has
// not yet been refreshed by a contiguous frame.
func (c *Client) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

// Subscribe returns a telemetry stream of the given kind and a cancel
// function. Slow subscribers lose frames rather than block the demux loop.
func (c *Client) Subscribe(kind robot.StreamKind) (<-chan robot.TelemetryFrame, func()) {
	ch := make(chan robot.TelemetryFrame, 16)
	c.subsMu.Lock()
	c.subs[kind] = append(c.subs[kind], ch)
	c.subsMu.Unlock()

	cancel := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		subs := c.subs[kind]
		for i, s := range subs {
			if s == ch {
				c.subs[kind] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (c *Client) nextSeq() uint64 {
	return c.seq.Add(1)
}

func (c *Client) send(ctx context.Context, cmd robot.Command) error {
	return c.channel.Send(ctx, cmd)
}

// currentStop captures the stop broadcast channel for a blocking wait.
func (c *Client) currentStop() chan struct{} {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	return c.stopCh
}

// MoveTo drives the base to the target pose. In blocking mode it suspends
// the caller until telemetry reports arrival within tolerance, the motion
// times out (ErrMotionTimeout), Stop pre-empts it (ErrMoveAborted), or ctx
// is cancelled. Non-blocking mode returns once the command is accepted by
// the channel; the caller polls State or subscribes.
func (c *Client) MoveTo(ctx context.Context, target robot.Pose, blocking bool) error {
	release, err := c.locks.acquire(ctx, robot.ActuatorBase, c.cfg.LockWait)
	if err != nil {
		return err
	}
	if !blocking {
		defer release()
		return c.send(ctx, robot.Command{
			Seq:        c.nextSeq(),
			Kind:       robot.CommandMoveBase,
			TargetPose: &target,
			Issued:     time.Now(),
		})
	}

	defer release()
	if err := c.send(ctx, robot.Command{
		Seq:        c.nextSeq(),
		Kind:       robot.CommandMoveBase,
		TargetPose: &target,
		Issued:     time.Now(),
	}); err != nil {
		return err
	}

	return c.waitFor(ctx, func(s robot.RobotState) bool {
		return s.Pose.Within(target, c.cfg.PositionTolerance, c.cfg.AngleTolerance)
	})
}

// MoveJoint drives a single joint to the given value. Blocking mode waits
// for the joint to reach the value within tolerance under the same timeout
// and pre-emption rules as MoveTo.
func (c *Client) MoveJoint(ctx context.Context, joint robot.Joint, value float64, blocking bool) error {
	release, err := c.locks.acquire(ctx, robot.ActuatorArm, c.cfg.LockWait)
	if err != nil {
		return err
	}
	defer release()

	if err := c.send(ctx, robot.Command{
		Seq:         c.nextSeq(),
		Kind:        robot.CommandMoveArm,
		TargetJoint: joint,
		TargetValue: value,
		Issued:      time.Now(),
	}); err != nil {
		return err
	}
	if !blocking {
		return nil
	}

	return c.waitFor(ctx, func(s robot.RobotState) bool {
		pos, ok := s.Joints.Positions[joint]
		return ok && abs(pos-value) <= c.cfg.JointTolerance
	})
}

// SetGripper moves the gripper to a position in [0, 1] and waits for it to
// settle within tolerance.
func (c *Client) SetGripper(ctx context.Context, position float64) error {
	release, err := c.locks.acquire(ctx, robot.ActuatorGripper, c.cfg.LockWait)
	if err != nil {
		return err
	}
	defer release()

	target := position
	if err := c.send(ctx, robot.Command{
		Seq:           c.nextSeq(),
		Kind:          robot.CommandMoveGripper,
		TargetGripper: &target,
		Issued:        time.Now(),
	}); err != nil {
		return err
	}

	return c.waitFor(ctx, func(s robot.RobotState) bool {
		return abs(s.Gripper.Position-position) <= c.cfg.JointTolerance
	})
}

// OpenGripper fully opens the gripper.
func (c *Client) OpenGripper(ctx context.Context) error { return c.SetGripper(ctx, 1) }

// CloseGripper fully closes the gripper.
func (c *Client) CloseGripper(ctx context.Context) error { return c.SetGripper(ctx, 0) }

// SwitchMode switches the robot between navigation and manipulation
// control modes.
func (c *Client) SwitchMode(ctx context.Context, mode robot.ControlMode) error {
	return c.send(ctx, robot.Command{
		Seq:        c.nextSeq(),
		Kind:       robot.CommandSwitchMode,
		TargetMode: mode,
		Issued:     time.Now(),
	})
}

// Stop halts all motion. It bypasses normal command sequencing on the
// priority stream and unblocks any blocking move with ErrMoveAborted.
func (c *Client) Stop(ctx context.Context) error {
	err := c.channel.SendPriority(ctx, robot.Command{
		Seq:    c.nextSeq(),
		Kind:   robot.CommandStop,
		Issued: time.Now(),
	})

	c.stopMu.Lock()
	close(c.stopCh)
	c.stopCh = make(chan struct{})
	c.stopMu.Unlock()

	return err
}

// Reset sends a reset command returning the robot to its origin posture.
func (c *Client) Reset(ctx context.Context) error {
	return c.send(ctx, robot.Command{
		Seq:    c.nextSeq(),
		Kind:   robot.CommandReset,
		Issued: time.Now(),
	})
}

// waitFor polls the latest state at the configured interval until the
// predicate holds, the motion timeout elapses, Stop pre-empts, or ctx is
// cancelled. Stale states (post-gap) do not satisfy the predicate.
func (c *Client) waitFor(ctx context.Context, arrived func(robot.RobotState) bool) error {
	stop := c.currentStop()
	deadline := time.NewTimer(c.cfg.MotionTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrMoveAborted
		case <-deadline.C:
			return ErrMotionTimeout
		case <-tick.C:
			c.mu.RLock()
			state, stale := c.last, c.stale
			c.mu.RUnlock()
			if !stale && arrived(state) {
				return nil
			}
		}
	}
}

// Close stops the demux loops and closes the underlying channel.
func (c *Client) Close() error {
	close(c.done)
	err := c.channel.Close()
	c.wg.Wait()
	return err
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
