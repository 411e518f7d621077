package transport

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mobile-manipulation/conductor/observability"
	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/wire"
)

// Observability event types emitted by the NATS channels.
const (
	EventDisconnected observability.EventType = "transport.disconnected"
	EventReconnected  observability.EventType = "transport.reconnected"
	EventDropped      observability.EventType = "transport.frame_dropped"
	EventDecodeError  observability.EventType = "transport.decode_error"
)

// connect dials the broker with unlimited exponential-backoff reconnection.
// Subscriptions survive reconnects, so telemetry resumes without callers
// re-subscribing; the sequence stream may contain a gap afterwards.
func connect(cfg Config, obs observability.Observer, who string) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(fmt.Sprintf("conductor-%s-%s", who, cfg.Robot)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			observability.Emit(context.Background(), obs, EventDisconnected,
				observability.LevelWarning, "transport", map[string]any{
					"robot": cfg.Robot,
					"error": fmt.Sprint(err),
				})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			observability.Emit(context.Background(), obs, EventReconnected,
				observability.LevelInfo, "transport", map[string]any{
					"robot": cfg.Robot,
					"url":   nc.ConnectedUrl(),
				})
		}),
	)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	return nc, nil
}

// NATSChannel is the controller-side Channel over a NATS connection.
type NATSChannel struct {
	conn       *nats.Conn
	cfg        Config
	observer   observability.Observer
	state      chan robot.TelemetryFrame
	full       chan robot.TelemetryFrame
	rejections chan wire.Rejection
	subs       []*nats.Subscription
}

// Dial connects the controller side and subscribes to both telemetry
// streams plus the rejection stream.
func Dial(cfg Config) (*NATSChannel, error) {
	obs, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	nc, err := connect(cfg, obs, "client")
	if err != nil {
		return nil, err
	}

	c := &NATSChannel{
		conn:       nc,
		cfg:        cfg,
		observer:   obs,
		state:      make(chan robot.TelemetryFrame, cfg.BufferSize),
		full:       make(chan robot.TelemetryFrame, cfg.BufferSize),
		rejections: make(chan wire.Rejection, cfg.BufferSize),
	}

	if err := c.subscribe(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *NATSChannel) subscribe() error {
	type stream struct {
		subject string
		sink    chan robot.TelemetryFrame
	}
	for _, s := range []stream{
		{wire.StateSubject(c.cfg.Robot), c.state},
		{wire.FullSubject(c.cfg.Robot), c.full},
	} {
		sink := s.sink
		sub, err := c.conn.Subscribe(s.subject, func(msg *nats.Msg) {
			frame, err := decodeTelemetryMsg(msg.Data)
			if err != nil {
				c.emitDecodeError(err)
				return
			}
			select {
			case sink <- frame:
			default:
				// Best-effort: a slow consumer loses frames, never blocks
				// the delivery goroutine.
				observability.Emit(context.Background(), c.observer, EventDropped,
					observability.LevelVerbose, "transport", map[string]any{
						"seq": frame.Seq(),
					})
			}
		})
		if err != nil {
			return &TransportError{Op: "subscribe", Err: err}
		}
		c.subs = append(c.subs, sub)
	}

	sub, err := c.conn.Subscribe(wire.RejectSubject(c.cfg.Robot), func(msg *nats.Msg) {
		env, err := wire.Decode(msg.Data)
		if err != nil {
			c.emitDecodeError(err)
			return
		}
		rej, err := wire.DecodeRejection(env)
		if err != nil {
			c.emitDecodeError(err)
			return
		}
		select {
		case c.rejections <- rej:
		default:
		}
	})
	if err != nil {
		return &TransportError{Op: "subscribe", Err: err}
	}
	c.subs = append(c.subs, sub)
	return nil
}

func (c *NATSChannel) emitDecodeError(err error) {
	observability.Emit(context.Background(), c.observer, EventDecodeError,
		observability.LevelWarning, "transport", map[string]any{
			"error": err.Error(),
		})
}

func decodeTelemetryMsg(data []byte) (robot.TelemetryFrame, error) {
	env, err := wire.Decode(data)
	if err != nil {
		return robot.TelemetryFrame{}, err
	}
	return wire.DecodeTelemetry(env)
}

func (c *NATSChannel) publish(subject string, cmd robot.Command) error {
	if c.conn.IsClosed() {
		return &TransportError{Op: "send", Err: ErrChannelClosed}
	}
	data, err := wire.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (c *NATSChannel) Send(ctx context.Context, cmd robot.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.publish(wire.CommandSubject(c.cfg.Robot), cmd)
}

func (c *NATSChannel) SendPriority(ctx context.Context, cmd robot.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.publish(wire.PrioritySubject(c.cfg.Robot), cmd); err != nil {
		return err
	}
	// Stop must not sit in client-side buffers.
	if err := c.conn.Flush(); err != nil {
		return &TransportError{Op: "flush", Err: err}
	}
	return nil
}

func (c *NATSChannel) Receive(kind robot.StreamKind) <-chan robot.TelemetryFrame {
	if kind == robot.StreamFull {
		return c.full
	}
	return c.state
}

func (c *NATSChannel) Rejections() <-chan wire.Rejection {
	return c.rejections
}

func (c *NATSChannel) Close() error {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
	return nil
}

// NATSServerChannel is the robot-side ServerChannel over a NATS connection.
type NATSServerChannel struct {
	conn     *nats.Conn
	cfg      Config
	observer observability.Observer
	commands chan robot.Command
	priority chan robot.Command
	subs     []*nats.Subscription
}

// Listen connects the robot side and subscribes to both command streams.
func Listen(cfg Config) (*NATSServerChannel, error) {
	obs, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	nc, err := connect(cfg, obs, "server")
	if err != nil {
		return nil, err
	}

	s := &NATSServerChannel{
		conn:     nc,
		cfg:      cfg,
		observer: obs,
		commands: make(chan robot.Command, cfg.BufferSize),
		priority: make(chan robot.Command, cfg.BufferSize),
	}

	for subject, sink := range map[string]chan robot.Command{
		wire.CommandSubject(cfg.Robot):  s.commands,
		wire.PrioritySubject(cfg.Robot): s.priority,
	} {
		sink := sink
		sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
			env, err := wire.Decode(msg.Data)
			if err != nil {
				return
			}
			cmd, err := wire.DecodeCommand(env)
			if err != nil {
				return
			}
			select {
			case sink <- cmd:
			default:
			}
		})
		if err != nil {
			nc.Close()
			return nil, &TransportError{Op: "subscribe", Err: err}
		}
		s.subs = append(s.subs, sub)
	}
	return s, nil
}

func (s *NATSServerChannel) Commands() <-chan robot.Command { return s.commands }
func (s *NATSServerChannel) Priority() <-chan robot.Command { return s.priority }

func (s *NATSServerChannel) publish(subject string, data []byte) error {
	if s.conn.IsClosed() {
		return &TransportError{Op: "publish", Err: ErrChannelClosed}
	}
	if err := s.conn.Publish(subject, data); err != nil {
		return &TransportError{Op: "publish", Err: err}
	}
	return nil
}

func (s *NATSServerChannel) PublishState(frame robot.TelemetryFrame) error {
	data, err := wire.EncodeTelemetry(frame)
	if err != nil {
		return err
	}
	return s.publish(wire.StateSubject(s.cfg.Robot), data)
}

func (s *NATSServerChannel) PublishFull(frame robot.TelemetryFrame) error {
	data, err := wire.EncodeTelemetry(frame)
	if err != nil {
		return err
	}
	return s.publish(wire.FullSubject(s.cfg.Robot), data)
}

func (s *NATSServerChannel) Reject(rej wire.Rejection) error {
	data, err := wire.EncodeRejection(rej)
	if err != nil {
		return err
	}
	return s.publish(wire.RejectSubject(s.cfg.Robot), data)
}

func (s *NATSServerChannel) Close() error {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.conn.Close()
	return nil
}
