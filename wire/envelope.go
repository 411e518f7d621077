// Package wire defines the message envelope and subject layout for the
// command/telemetry protocol between controller and robot. Two independent
// logical streams exist per robot: commands flow controller→robot, telemetry
// flows robot→controller. Every message carries a monotonically increasing
// sequence number and a type tag.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mobile-manipulation/conductor/robot"
)

// MessageType tags the payload carried by an envelope.
type MessageType string

const (
	TypeCommand   MessageType = "command"
	TypeTelemetry MessageType = "telemetry"
	TypeRejection MessageType = "rejection"
)

// Envelope is the framing for every wire message.
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Rejection is sent by the server when it refuses a command, so stale
// sequence numbers are visible to the sender instead of silently dropped.
type Rejection struct {
	Seq     uint64 `json:"seq"`
	LastSeq uint64 `json:"last_seq"`
	Reason  string `json:"reason"`
}

func newEnvelope(typ MessageType, seq uint64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Envelope{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      typ,
		Seq:       seq,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

// EncodeCommand wraps a command in an envelope and serializes it.
func EncodeCommand(cmd robot.Command) ([]byte, error) {
	env, err := newEnvelope(TypeCommand, cmd.Seq, cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// EncodeTelemetry wraps a telemetry frame in an envelope and serializes it.
func EncodeTelemetry(frame robot.TelemetryFrame) ([]byte, error) {
	env, err := newEnvelope(TypeTelemetry, frame.Seq(), frame)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// EncodeRejection wraps a command rejection and serializes it.
func EncodeRejection(rej Rejection) ([]byte, error) {
	env, err := newEnvelope(TypeRejection, rej.Seq, rej)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses an envelope from raw bytes without touching the payload.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse envelope: %w", err)
	}
	return env, nil
}

// DecodeCommand extracts a command from an envelope.
func DecodeCommand(env Envelope) (robot.Command, error) {
	if env.Type != TypeCommand {
		return robot.Command{}, fmt.Errorf("envelope type %s is not a command", env.Type)
	}
	var cmd robot.Command
	if err := json.Unmarshal(env.Payload, &cmd); err != nil {
		return robot.Command{}, fmt.Errorf("failed to parse command payload: %w", err)
	}
	return cmd, nil
}

// DecodeTelemetry extracts a telemetry frame from an envelope.
func DecodeTelemetry(env Envelope) (robot.TelemetryFrame, error) {
	if env.Type != TypeTelemetry {
		return robot.TelemetryFrame{}, fmt.Errorf("envelope type %s is not telemetry", env.Type)
	}
	var frame robot.TelemetryFrame
	if err := json.Unmarshal(env.Payload, &frame); err != nil {
		return robot.TelemetryFrame{}, fmt.Errorf("failed to parse telemetry payload: %w", err)
	}
	return frame, nil
}

// DecodeRejection extracts a rejection from an envelope.
func DecodeRejection(env Envelope) (Rejection, error) {
	if env.Type != TypeRejection {
		return Rejection{}, fmt.Errorf("envelope type %s is not a rejection", env.Type)
	}
	var rej Rejection
	if err := json.Unmarshal(env.Payload, &rej); err != nil {
		return Rejection{}, fmt.Errorf("failed to parse rejection payload: %w", err)
	}
	return rej, nil
}
