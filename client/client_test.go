package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mobile-manipulation/conductor/client"
	"github.com/mobile-manipulation/conductor/robot"
	"github.com/mobile-manipulation/conductor/transport"
)

func createTestClient(t *testing.T) (*client.Client, transport.ServerChannel) {
	t.Helper()
	pipe := transport.NewPipe(16)

	cfg := client.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MotionTimeout = time.Second
	cfg.LockWait = time.Second
	cfg.Observer = "noop"

	c, err := client.New(pipe.ClientEnd(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, pipe.ServerEnd()
}

// publishState pushes a state frame and waits for the client to absorb it.
func publishState(t *testing.T, c *client.Client, server transport.ServerChannel, state robot.RobotState) {
	t.Helper()
	if err := server.PublishState(robot.TelemetryFrame{State: state}); err != nil {
		t.Fatalf("PublishState failed: %v", err)
	}
	deadline := time.After(time.Second)
	for c.State().Seq != state.Seq {
		select {
		case <-deadline:
			t.Fatalf("client did not absorb frame seq %d", state.Seq)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestClientSequenceStrictlyIncreases(t *testing.T) {
	c, server := createTestClient(t)

	for i := 0; i < 3; i++ {
		if err := c.MoveTo(context.Background(), robot.Pose{X: float64(i)}, false); err != nil {
			t.Fatalf("MoveTo failed: %v", err)
		}
	}

	var prev uint64
	for i := 0; i < 3; i++ {
		select {
		case cmd := <-server.Commands():
			if cmd.Seq <= prev {
				t.Errorf("command seq %d not greater than previous %d", cmd.Seq, prev)
			}
			prev = cmd.Seq
		case <-time.After(time.Second):
			t.Fatal("command not delivered")
		}
	}
}

func TestClientDropsRegressedFrames(t *testing.T) {
	c, server := createTestClient(t)

	publishState(t, c, server, robot.RobotState{Seq: 5, Pose: robot.Pose{X: 5}})

	// A replayed older frame must not roll state back.
	if err := server.PublishState(robot.TelemetryFrame{State: robot.RobotState{Seq: 3, Pose: robot.Pose{X: 3}}}); err != nil {
		t.Fatalf("PublishState failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := c.State(); got.Seq != 5 || got.Pose.X != 5 {
		t.Errorf("state = %+v, want the seq-5 snapshot", got)
	}
	if c.Stale() {
		t.Error("regressed frame must not mark state stale")
	}
}

func TestClientGapMarksStale(t *testing.T) {
	c, server := createTestClient(t)

	publishState(t, c, server, robot.RobotState{Seq: 1})
	publishState(t, c, server, robot.RobotState{Seq: 5})

	if !c.Stale() {
		t.Error("gap in sequence must mark state stale")
	}

	// A contiguous frame clears staleness.
	publishState(t, c, server, robot.RobotState{Seq: 6})
	if c.Stale() {
		t.Error("contiguous frame must clear staleness")
	}
}

func TestClientBlockingMoveTo(t *testing.T) {
	c, server := createTestClient(t)
	target := robot.Pose{X: 2, Y: 1}

	go func() {
		// Consume the command, then report arrival over telemetry.
		cmd := <-server.Commands()
		server.PublishState(robot.TelemetryFrame{State: robot.RobotState{
			Seq:  1,
			Pose: *cmd.TargetPose,
		}})
	}()

	if err := c.MoveTo(context.Background(), target, true); err != nil {
		t.Fatalf("blocking MoveTo failed: %v", err)
	}
	if got := c.State().Pose; !got.Within(target, 0.01, 0.01) {
		t.Errorf("final pose = %+v, want %+v", got, target)
	}
}

func TestClientBlockingMoveIgnoresStaleState(t *testing.T) {
	c, server := createTestClient(t)
	target := robot.Pose{X: 1}

	publishState(t, c, server, robot.RobotState{Seq: 1})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.MoveTo(context.Background(), target, true)
	}()

	// Drain the command, then deliver the target pose on a gapped frame: it
	// must not count as arrival.
	<-server.Commands()
	publishState(t, c, server, robot.RobotState{Seq: 10, Pose: target})

	select {
	case err := <-errCh:
		t.Fatalf("move completed on stale state: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// The next contiguous frame confirms the pose and releases the move.
	publishState(t, c, server, robot.RobotState{Seq: 11, Pose: target})
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("blocking MoveTo failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("move did not complete after fresh frame")
	}
}

func TestClientMotionTimeout(t *testing.T) {
	pipe := transport.NewPipe(16)
	cfg := client.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MotionTimeout = 50 * time.Millisecond
	cfg.Observer = "noop"
	c, err := client.New(pipe.ClientEnd(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	err = c.MoveTo(context.Background(), robot.Pose{X: 100}, true)
	if !errors.Is(err, client.ErrMotionTimeout) {
		t.Errorf("expected ErrMotionTimeout, got %v", err)
	}
}

func TestClientStopPreemptsBlockingMove(t *testing.T) {
	c, server := createTestClient(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.MoveTo(context.Background(), robot.Pose{X: 10}, true)
	}()
	<-server.Commands()

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, client.ErrMoveAborted) {
			t.Errorf("expected ErrMoveAborted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not pre-empt the blocking move")
	}

	// Stop travels on the priority stream, not the ordered one.
	select {
	case cmd := <-server.Priority():
		if cmd.Kind != robot.CommandStop {
			t.Errorf("priority command = %+v", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("stop command not delivered on priority stream")
	}
}

func TestClientLockReleasedAfterAbort(t *testing.T) {
	c, server := createTestClient(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.MoveTo(context.Background(), robot.Pose{X: 10}, true)
	}()
	<-server.Commands()

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := <-errCh; !errors.Is(err, client.ErrMoveAborted) {
		t.Fatalf("expected ErrMoveAborted, got %v", err)
	}

	// The aborted move released the base lock: a fresh command goes through
	// without waiting out the lock budget.
	if err := c.MoveTo(context.Background(), robot.Pose{X: 1}, false); err != nil {
		t.Errorf("MoveTo after abort failed: %v", err)
	}
}

func TestClientActuatorBusy(t *testing.T) {
	pipe := transport.NewPipe(16)
	cfg := client.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MotionTimeout = 5 * time.Second
	cfg.LockWait = 50 * time.Millisecond
	cfg.Observer = "noop"
	c, err := client.New(pipe.ClientEnd(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()
	server := pipe.ServerEnd()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.MoveTo(context.Background(), robot.Pose{X: 10}, true)
	}()
	<-server.Commands()

	// The base lock is held by the in-flight move.
	err = c.MoveTo(context.Background(), robot.Pose{X: 1}, false)
	if !errors.Is(err, client.ErrActuatorBusy) {
		t.Errorf("expected ErrActuatorBusy, got %v", err)
	}

	// A different actuator is unaffected.
	if err := c.MoveJoint(context.Background(), robot.JointLift, 0.5, false); err != nil {
		t.Errorf("MoveJoint during base move failed: %v", err)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	<-errCh
}

func TestClientConcurrentCommandsKeepSeqUnique(t *testing.T) {
	pipe := transport.NewPipe(128)
	cfg := client.DefaultConfig()
	cfg.Observer = "noop"
	c, err := client.New(pipe.ClientEnd(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()
	server := pipe.ServerEnd()

	const workers = 4
	const perWorker = 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Mix actuators so the advisory locks overlap.
				if i%2 == 0 {
					_ = c.MoveJoint(context.Background(), robot.JointLift, float64(i), false)
				} else {
					_ = c.SwitchMode(context.Background(), robot.ModeNavigation)
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for i := 0; i < workers*perWorker; i++ {
		select {
		case cmd := <-server.Commands():
			if seen[cmd.Seq] {
				t.Fatalf("duplicate command seq %d", cmd.Seq)
			}
			seen[cmd.Seq] = true
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d commands delivered", i, workers*perWorker)
		}
	}
}

func TestClientSubscribe(t *testing.T) {
	c, server := createTestClient(t)

	frames, cancel := c.Subscribe(robot.StreamFull)
	defer cancel()

	if err := server.PublishFull(robot.TelemetryFrame{
		State: robot.RobotState{Seq: 1},
		Image: []byte("img"),
	}); err != nil {
		t.Fatalf("PublishFull failed: %v", err)
	}

	select {
	case frame := <-frames:
		if string(frame.Image) != "img" {
			t.Errorf("frame image = %q", frame.Image)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive frame")
	}
}

func TestClientSwitchModeAndReset(t *testing.T) {
	c, server := createTestClient(t)

	if err := c.SwitchMode(context.Background(), robot.ModeManipulation); err != nil {
		t.Fatalf("SwitchMode failed: %v", err)
	}
	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	kinds := []robot.CommandKind{}
	for i := 0; i < 2; i++ {
		select {
		case cmd := <-server.Commands():
			kinds = append(kinds, cmd.Kind)
		case <-time.After(time.Second):
			t.Fatal("command not delivered")
		}
	}
	if kinds[0] != robot.CommandSwitchMode || kinds[1] != robot.CommandReset {
		t.Errorf("commands = %v", kinds)
	}
}
