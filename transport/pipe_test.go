package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/transport"
	"github.com/mobile-manipulation/conductor/wire"
)

func TestPipeCommandDelivery(t *testing.T) {
	p := transport.NewPipe(4)
	client := p.ClientEnd()
	server := p.ServerEnd()

	cmd := robot.Command{Seq: 1, Kind: robot.CommandMoveBase}
	if err := client.Send(context.Background(), cmd); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-server.Commands():
		if got.Seq != 1 || got.Kind != robot.CommandMoveBase {
			t.Errorf("received %+v, want %+v", got, cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("command not delivered")
	}
}

func TestPipePriorityIsSeparateStream(t *testing.T) {
	p := transport.NewPipe(4)
	client := p.ClientEnd()
	server := p.ServerEnd()

	// Fill the ordered stream, then confirm priority still goes through.
	for i := 0; i < 4; i++ {
		if err := client.Send(context.Background(), robot.Command{Seq: uint64(i + 1), Kind: robot.CommandMoveBase}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if err := client.SendPriority(context.Background(), robot.Command{Seq: 5, Kind: robot.CommandStop}); err != nil {
		t.Fatalf("SendPriority failed: %v", err)
	}

	select {
	case got := <-server.Priority():
		if got.Kind != robot.CommandStop {
			t.Errorf("priority stream received %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("priority command not delivered")
	}
}

func TestPipeTelemetryStreams(t *testing.T) {
	p := transport.NewPipe(4)
	client := p.ClientEnd()
	server := p.ServerEnd()

	state := robot.TelemetryFrame{State: robot.RobotState{Seq: 1}}
	full := robot.TelemetryFrame{State: robot.RobotState{Seq: 2}, Image: []byte("img")}

	if err := server.PublishState(state); err != nil {
		t.Fatalf("PublishState failed: %v", err)
	}
	if err := server.PublishFull(full); err != nil {
		t.Fatalf("PublishFull failed: %v", err)
	}

	select {
	case got := <-client.Receive(robot.StreamState):
		if got.Seq() != 1 {
			t.Errorf("state stream seq = %d, want 1", got.Seq())
		}
	case <-time.After(time.Second):
		t.Fatal("state frame not delivered")
	}
	select {
	case got := <-client.Receive(robot.StreamFull):
		if got.Seq() != 2 || got.Image == nil {
			t.Errorf("full stream frame = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("full frame not delivered")
	}
}

func TestPipeDropsOnOverflow(t *testing.T) {
	p := transport.NewPipe(2)
	server := p.ServerEnd()

	for seq := uint64(1); seq <= 5; seq++ {
		if err := server.PublishState(robot.TelemetryFrame{State: robot.RobotState{Seq: seq}}); err != nil {
			t.Fatalf("PublishState failed: %v", err)
		}
	}

	// Only the first two frames fit; later ones were dropped, not blocked on.
	client := p.ClientEnd()
	got := []uint64{}
	for {
		select {
		case frame := <-client.Receive(robot.StreamState):
			got = append(got, frame.Seq())
			continue
		default:
		}
		break
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("delivered frames = %v, want [1 2]", got)
	}
}

func TestPipeRejections(t *testing.T) {
	p := transport.NewPipe(4)
	client := p.ClientEnd()
	server := p.ServerEnd()

	if err := server.Reject(wire.Rejection{Seq: 3, LastSeq: 7, Reason: "stale"}); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	select {
	case rej := <-client.Rejections():
		if rej.Seq != 3 || rej.LastSeq != 7 {
			t.Errorf("rejection = %+v", rej)
		}
	case <-time.After(time.Second):
		t.Fatal("rejection not delivered")
	}
}

func TestPipeSendAfterClose(t *testing.T) {
	p := transport.NewPipe(4)
	client := p.ClientEnd()

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	err := client.Send(context.Background(), robot.Command{Seq: 1})
	if !errors.Is(err, transport.ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}

	var terr *transport.TransportError
	if !errors.As(err, &terr) {
		t.Errorf("expected TransportError, got %T", err)
	}
}

func TestConfigMerge(t *testing.T) {
	cfg := transport.DefaultConfig()
	cfg.Merge(&transport.Config{URL: "nats://10.0.0.5:4222", Robot: "lab2"})

	if cfg.URL != "nats://10.0.0.5:4222" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Robot != "lab2" {
		t.Errorf("Robot = %q", cfg.Robot)
	}
	if cfg.BufferSize != 64 {
		t.Errorf("BufferSize = %d, want default 64", cfg.BufferSize)
	}
}
