package agent

import (
	"sync"

	"github.com/mobile-manipulation/conductor/robot"
)

// WorldModel is the process-wide snapshot of the robot's world: the most
// recent robot state and the map version it was integrated against.
//
// Write discipline: only the agent's background update loop writes; task
// operations read. Versioning (state sequence number plus map version)
// lets readers detect staleness instead of relying on implicit freshness.
type WorldModel struct {
	mu         sync.RWMutex
	state      robot.RobotState
	stale      bool
	mapVersion uint64
}

// State returns the latest robot state snapshot.
func (w *WorldModel) State() robot.RobotState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Stale reports whether the snapshot followed a telemetry gap.
func (w *WorldModel) Stale() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stale
}

// MapVersion returns the map version the snapshot was integrated against.
func (w *WorldModel) MapVersion() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mapVersion
}

func (w *WorldModel) update(state robot.RobotState, stale bool, mapVersion uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
	w.stale = stale
	w.mapVersion = mapVersion
}
