package wire_test

import (
	"testing"
	"time"

	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/wire"
)

func TestCommandRoundTrip(t *testing.T) {
	cmd := robot.Command{
		Seq:        42,
		Kind:       robot.CommandMoveBase,
		TargetPose: &robot.Pose{X: 1.5, Y: -0.5, Theta: 0.25},
		Issued:     time.Now(),
	}

	data, err := wire.EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	env, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Type != wire.TypeCommand {
		t.Errorf("envelope type = %s, want %s", env.Type, wire.TypeCommand)
	}
	if env.Seq != cmd.Seq {
		t.Errorf("envelope seq = %d, want %d", env.Seq, cmd.Seq)
	}
	if env.ID == "" {
		t.Error("envelope ID must be set")
	}

	decoded, err := wire.DecodeCommand(env)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if decoded.Kind != cmd.Kind || decoded.Seq != cmd.Seq {
		t.Errorf("decoded command = %+v, want %+v", decoded, cmd)
	}
	if decoded.TargetPose == nil || decoded.TargetPose.X != 1.5 {
		t.Errorf("decoded target pose = %+v", decoded.TargetPose)
	}
}

func TestTelemetryRoundTrip(t *testing.T) {
	frame := robot.TelemetryFrame{
		State: robot.RobotState{
			Seq:  7,
			Pose: robot.Pose{X: 2, Y: 3},
			Mode: robot.ModeNavigation,
		},
		Image: []byte("jpeg-bytes"),
	}

	data, err := wire.EncodeTelemetry(frame)
	if err != nil {
		t.Fatalf("EncodeTelemetry failed: %v", err)
	}

	env, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Seq != frame.Seq() {
		t.Errorf("envelope seq = %d, want %d", env.Seq, frame.Seq())
	}

	decoded, err := wire.DecodeTelemetry(env)
	if err != nil {
		t.Fatalf("DecodeTelemetry failed: %v", err)
	}
	if decoded.State.Seq != 7 || decoded.State.Mode != robot.ModeNavigation {
		t.Errorf("decoded state = %+v", decoded.State)
	}
	if string(decoded.Image) != "jpeg-bytes" {
		t.Errorf("decoded image = %q", decoded.Image)
	}
}

func TestRejectionRoundTrip(t *testing.T) {
	rej := wire.Rejection{Seq: 5, LastSeq: 9, Reason: "sequence regressed"}

	data, err := wire.EncodeRejection(rej)
	if err != nil {
		t.Fatalf("EncodeRejection failed: %v", err)
	}
	env, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	decoded, err := wire.DecodeRejection(env)
	if err != nil {
		t.Fatalf("DecodeRejection failed: %v", err)
	}
	if decoded != rej {
		t.Errorf("decoded rejection = %+v, want %+v", decoded, rej)
	}
}

func TestDecodeTypeMismatch(t *testing.T) {
	data, err := wire.EncodeCommand(robot.Command{Seq: 1, Kind: robot.CommandStop})
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	env, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if _, err := wire.DecodeTelemetry(env); err == nil {
		t.Error("expected error decoding command envelope as telemetry")
	}
	if _, err := wire.DecodeRejection(env); err == nil {
		t.Error("expected error decoding command envelope as rejection")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := wire.Decode([]byte("not json")); err == nil {
		t.Error("expected error for malformed envelope")
	}
}

func TestSubjects(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{wire.CommandSubject("stretch"), "robot.stretch.cmd"},
		{wire.PrioritySubject("stretch"), "robot.stretch.cmd.priority"},
		{wire.StateSubject("stretch"), "robot.stretch.telemetry.state"},
		{wire.FullSubject("stretch"), "robot.stretch.telemetry.full"},
		{wire.RejectSubject("stretch"), "robot.stretch.reject"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("subject = %q, want %q", c.got, c.want)
		}
	}
}
