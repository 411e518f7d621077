package client

import (
	"context"
	"fmt"
	"time"

	"github.com/mobile-manipulation/conductor/robot"
)

// lockTable holds the per-actuator advisory locks. Waits are bounded: a
// caller that cannot acquire the lock within the configured wait fails with
// ErrActuatorBusy instead of deadlocking two task instances against each
// other.
type lockTable struct {
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	t := &lockTable{locks: make(map[string]chan struct{})}
	for _, name := range []string{robot.ActuatorBase, robot.ActuatorArm, robot.ActuatorGripper} {
		sem := make(chan struct{}, 1)
		sem <- struct{}{}
		t.locks[name] = sem
	}
	return t
}

// acquire takes the named lock, waiting up to wait. The returned release
// function is idempotent and must be called on every exit path, including
// timeout and abort, so no lock outlives a terminal result.
func (t *lockTable) acquire(ctx context.Context, name string, wait time.Duration) (func(), error) {
	sem, ok := t.locks[name]
	if !ok {
		return nil, fmt.Errorf("unknown actuator: %s", name)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s held past %s", ErrActuatorBusy, name, wait)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		sem <- struct{}{}
	}
	return release, nil
}
