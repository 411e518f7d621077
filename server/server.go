// Package server implements the robot-resident process: it consumes
// commands in sequence-number order, applies them to the actuators (or a
// simulator), and publishes telemetry at a fixed cadence independent of
// command arrival. Stop commands travel on a priority stream and pre-empt
// in-flight motion within one control cycle.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mobile-manipulation/conductor/observability"
	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/transport"
	"github.com/mobile-manipulation/conductor/wire"
)

// Event types emitted by the server.
const (
	EventCommandApplied  observability.EventType = "server.command.applied"
	EventCommandRejected observability.EventType = "server.command.rejected"
	EventStopApplied     observability.EventType = "server.stop"
)

// Actuators abstracts the hardware (or simulator) below the server. Step
// advances the physical model by one control period; a real robot driver
// makes it a no-op and reads encoders in Snapshot instead.
type Actuators interface {
	// Apply starts executing a command. It returns an error only for
	// malformed commands; motion progress is reported through Snapshot.
	Apply(cmd robot.Command) error

	// Halt cancels all in-flight motion immediately.
	Halt()

	// Step advances the model by dt.
	Step(dt time.Duration)

	// Snapshot returns the current state without sequence number or
	// timestamp; the server stamps those.
	Snapshot() robot.RobotState
}

// Sensors optionally provides camera and depth payloads for the full
// telemetry stream.
type Sensors interface {
	Capture() (image []byte, cloud []byte)
}

// Config holds server parameters.
type Config struct {
	// ControlPeriod is the control-loop cycle; telemetry is published once
	// per cycle.
	ControlPeriod time.Duration `json:"control_period,omitempty"`

	// FullEvery publishes a full telemetry frame (with sensor payloads)
	// every N cycles. Zero disables the full stream.
	FullEvery int `json:"full_every,omitempty"`

	Observer string `json:"observer,omitempty"`
}

// DefaultConfig returns server defaults: a 50ms control cycle with a full
// frame every 10 cycles.
func DefaultConfig() Config {
	return Config{
		ControlPeriod: 50 * time.Millisecond,
		FullEvery:     10,
		Observer:      "slog",
	}
}

// Merge applies non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.ControlPeriod > 0 {
		c.ControlPeriod = source.ControlPeriod
	}
	if source.FullEvery > 0 {
		c.FullEvery = source.FullEvery
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// Server runs the control loop over a server channel.
type Server struct {
	channel  transport.ServerChannel
	act      Actuators
	sensors  Sensors
	cfg      Config
	observer observability.Observer

	lastApplied uint64
	seq         uint64
	appliedMove map[uint64]bool
}

// New creates a Server. sensors may be nil; the full stream is then
// disabled regardless of FullEvery.
func New(channel transport.ServerChannel, act Actuators, sensors Sensors, cfg Config) (*Server, error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}
	return &Server{
		channel:     channel,
		act:         act,
		sensors:     sensors,
		cfg:         cfg,
		observer:    observer,
		appliedMove: make(map[uint64]bool),
	}, nil
}

// Run drives the control loop until ctx is cancelled. Each cycle handles
// priority commands first, then ordered commands, steps the actuators, and
// publishes telemetry.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ControlPeriod)
	defer ticker.Stop()

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-s.channel.Priority():
			// Handled out of band so stop never waits for a tick.
			s.applyPriority(ctx, cmd)

		case <-ticker.C:
			s.drainPriority(ctx)
			s.drainCommands(ctx)
			s.act.Step(s.cfg.ControlPeriod)
			cycle++
			s.publish(ctx, cycle)
		}
	}
}

func (s *Server) drainPriority(ctx context.Context) {
	for {
		select {
		case cmd := <-s.channel.Priority():
			s.applyPriority(ctx, cmd)
		default:
			return
		}
	}
}

// applyPriority executes a pre-empting command. Stop bypasses sequencing
// entirely: it is always applied, whatever its sequence number.
func (s *Server) applyPriority(ctx context.Context, cmd robot.Command) {
	switch cmd.Kind {
	case robot.CommandStop:
		s.act.Halt()
		observability.Emit(ctx, s.observer, EventStopApplied, observability.LevelWarning, "server", map[string]any{
			"seq": cmd.Seq,
		})
	default:
		// Only stop is privileged; everything else joins the ordered path.
		s.apply(ctx, cmd)
	}
}

func (s *Server) drainCommands(ctx context.Context) {
	for {
		select {
		case cmd := <-s.channel.Commands():
			s.apply(ctx, cmd)
		default:
			return
		}
	}
}

// apply enforces the sequencing contract: commands must arrive with
// strictly increasing sequence numbers; stale or duplicate numbers are
// rejected, not silently dropped. Motion commands are deduplicated by
// sequence number so resends are safe for everything else.
func (s *Server) apply(ctx context.Context, cmd robot.Command) {
	if cmd.Seq <= s.lastApplied {
		if cmd.Motion() && s.appliedMove[cmd.Seq] {
			// Duplicate of an already-applied motion command: dedupe quietly.
			return
		}
		rej := wire.Rejection{
			Seq:     cmd.Seq,
			LastSeq: s.lastApplied,
			Reason:  "stale sequence number",
		}
		if err := s.channel.Reject(rej); err != nil {
			observability.Emit(ctx, s.observer, EventCommandRejected, observability.LevelError, "server", map[string]any{
				"seq":   cmd.Seq,
				"error": err.Error(),
			})
			return
		}
		observability.Emit(ctx, s.observer, EventCommandRejected, observability.LevelWarning, "server", map[string]any{
			"seq":      cmd.Seq,
			"last_seq": s.lastApplied,
		})
		return
	}

	if err := s.act.Apply(cmd); err != nil {
		observability.Emit(ctx, s.observer, EventCommandRejected, observability.LevelWarning, "server", map[string]any{
			"seq":    cmd.Seq,
			"reason": err.Error(),
		})
		return
	}

	s.lastApplied = cmd.Seq
	if cmd.Motion() {
		s.appliedMove[cmd.Seq] = true
	}
	observability.Emit(ctx, s.observer, EventCommandApplied, observability.LevelVerbose, "server", map[string]any{
		"seq":  cmd.Seq,
		"kind": string(cmd.Kind),
	})
}

// publish emits the per-cycle state frame and, every FullEvery cycles, a
// full frame with sensor payloads.
func (s *Server) publish(ctx context.Context, cycle int) {
	s.seq++
	state := s.act.Snapshot()
	state.Seq = s.seq
	state.Timestamp = time.Now()

	frame := robot.TelemetryFrame{State: state}
	if err := s.channel.PublishState(frame); err != nil {
		observability.Emit(ctx, s.observer, EventCommandRejected, observability.LevelWarning, "server", map[string]any{
			"error": err.Error(),
		})
	}

	if s.sensors != nil && s.cfg.FullEvery > 0 && cycle%s.cfg.FullEvery == 0 {
		image, cloud := s.sensors.Capture()
		full := robot.TelemetryFrame{State: state, Image: image, PointCloud: cloud}
		if err := s.channel.PublishFull(full); err != nil {
			observability.Emit(ctx, s.observer, EventCommandRejected, observability.LevelWarning, "server", map[string]any{
				"error": err.Error(),
			})
		}
	}
}
