package transport

import (
	"context"
	"sync/atomic"

	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/wire"
)

// Pipe is an in-memory channel pair connecting a client end and a server
// end inside one process. It is used by unit tests and by single-box
// simulation, and shares the delivery semantics of the NATS channels:
// best-effort, bounded buffers, drop on overflow.
type Pipe struct {
	commands   chan robot.Command
	priority   chan robot.Command
	state      chan robot.TelemetryFrame
	full       chan robot.TelemetryFrame
	rejections chan wire.Rejection
	closed     atomic.Bool
}

// NewPipe creates a connected in-memory pipe with the given buffer size.
func NewPipe(bufferSize int) *Pipe {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Pipe{
		commands:   make(chan robot.Command, bufferSize),
		priority:   make(chan robot.Command, bufferSize),
		state:      make(chan robot.TelemetryFrame, bufferSize),
		full:       make(chan robot.TelemetryFrame, bufferSize),
		rejections: make(chan wire.Rejection, bufferSize),
	}
}

// ClientEnd returns the controller-side view of the pipe.
func (p *Pipe) ClientEnd() Channel { return (*pipeClient)(p) }

// ServerEnd returns the robot-side view of the pipe.
func (p *Pipe) ServerEnd() ServerChannel { return (*pipeServer)(p) }

type pipeClient Pipe

func (p *pipeClient) Send(ctx context.Context, cmd robot.Command) error {
	if p.closed.Load() {
		return &TransportError{Op: "send", Err: ErrChannelClosed}
	}
	select {
	case p.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeClient) SendPriority(ctx context.Context, cmd robot.Command) error {
	if p.closed.Load() {
		return &TransportError{Op: "send", Err: ErrChannelClosed}
	}
	select {
	case p.priority <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeClient) Receive(kind robot.StreamKind) <-chan robot.TelemetryFrame {
	if kind == robot.StreamFull {
		return p.full
	}
	return p.state
}

func (p *pipeClient) Rejections() <-chan wire.Rejection { return p.rejections }

func (p *pipeClient) Close() error {
	p.closed.Store(true)
	return nil
}

type pipeServer Pipe

func (p *pipeServer) Commands() <-chan robot.Command { return p.commands }
func (p *pipeServer) Priority() <-chan robot.Command { return p.priority }

func (p *pipeServer) deliver(sink chan robot.TelemetryFrame, frame robot.TelemetryFrame) error {
	if p.closed.Load() {
		return &TransportError{Op: "publish", Err: ErrChannelClosed}
	}
	select {
	case sink <- frame:
	default:
		// Drop on overflow, matching broker-backed best-effort delivery.
	}
	return nil
}

func (p *pipeServer) PublishState(frame robot.TelemetryFrame) error {
	return p.deliver(p.state, frame)
}

func (p *pipeServer) PublishFull(frame robot.TelemetryFrame) error {
	return p.deliver(p.full, frame)
}

func (p *pipeServer) Reject(rej wire.Rejection) error {
	if p.closed.Load() {
		return &TransportError{Op: "publish", Err: ErrChannelClosed}
	}
	select {
	case p.rejections <- rej:
	default:
	}
	return nil
}

func (p *pipeServer) Close() error {
	p.closed.Store(true)
	return nil
}
