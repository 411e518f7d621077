// Package transport carries commands to the robot and telemetry back over a
// message-oriented channel. Delivery is best-effort, at-most-once per
// physical send; the layers above tolerate loss and detect sequence gaps.
// Reconnection is handled inside the channel: consumers keep reading the
// same telemetry channel across reconnects and must treat sequence gaps as
// "stale state, re-synchronize" rather than an error.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/wire"
)

// ErrChannelClosed is returned by Send once a channel has been closed.
var ErrChannelClosed = errors.New("transport channel closed")

// TransportError wraps connection-level faults. These are recovered locally
// by reconnect/backoff and surface to callers only as telemetry gaps.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Channel is the controller-side end of the command/telemetry link.
type Channel interface {
	// Send publishes a command on the ordered command stream.
	Send(ctx context.Context, cmd robot.Command) error

	// SendPriority publishes a command on the pre-empting stream,
	// bypassing anything queued on the ordered stream.
	SendPriority(ctx context.Context, cmd robot.Command) error

	// Receive returns the telemetry stream for the given kind. The channel
	// stays valid across reconnects; after Close it stops yielding frames.
	Receive(kind robot.StreamKind) <-chan robot.TelemetryFrame

	// Rejections returns the stream of command rejections from the server.
	Rejections() <-chan wire.Rejection

	Close() error
}

// ServerChannel is the robot-side end of the link.
type ServerChannel interface {
	// Commands yields commands from the ordered stream.
	Commands() <-chan robot.Command

	// Priority yields pre-empting commands (stop).
	Priority() <-chan robot.Command

	// PublishState publishes a state-only telemetry frame.
	PublishState(frame robot.TelemetryFrame) error

	// PublishFull publishes a telemetry frame with sensor payloads.
	PublishFull(frame robot.TelemetryFrame) error

	// Reject reports a refused command back to the controller.
	Reject(rej wire.Rejection) error

	Close() error
}

// Config holds connection parameters shared by both channel ends.
type Config struct {
	// URL is the broker address, e.g. "nats://10.0.0.5:4222".
	URL string `json:"url"`

	// Robot names the robot instance; it scopes all wire subjects.
	Robot string `json:"robot"`

	// BufferSize bounds the per-stream delivery buffers. Frames beyond the
	// buffer are dropped (best-effort delivery).
	BufferSize int `json:"buffer_size,omitempty"`

	// ReconnectWait is the base delay between reconnect attempts.
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`

	Observer string `json:"observer,omitempty"`
}

// DefaultConfig returns transport defaults for a local broker.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://127.0.0.1:4222",
		Robot:         "stretch",
		BufferSize:    64,
		ReconnectWait: 500 * time.Millisecond,
		Observer:      "slog",
	}
}

// Merge applies non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.URL != "" {
		c.URL = source.URL
	}
	if source.Robot != "" {
		c.Robot = source.Robot
	}
	if source.BufferSize > 0 {
		c.BufferSize = source.BufferSize
	}
	if source.ReconnectWait > 0 {
		c.ReconnectWait = source.ReconnectWait
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}
