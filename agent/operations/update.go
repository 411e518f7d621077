package operations

import (
	"context"

	"github.com/mobile-manipulation/conductor/robot"
)

// UpdateMap folds a burst of full telemetry frames into the mapper. Graphs
// schedule it after motion so the world model reflects the new viewpoint.
type UpdateMap struct {
	Deps
	Frames int

	integrated int
}

// NewUpdateMap creates an update consuming the given number of frames.
func NewUpdateMap(deps Deps, frames int) *UpdateMap {
	if frames <= 0 {
		frames = 3
	}
	return &UpdateMap{Deps: deps, Frames: frames}
}

func (u *UpdateMap) Name() string { return "update_map" }

func (u *UpdateMap) CanStart(ctx context.Context) bool { return true }

func (u *UpdateMap) Run(ctx context.Context) error {
	frames, cancel := u.Robot.Subscribe(robot.StreamFull)
	defer cancel()

	for u.integrated < u.Frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-frames:
			u.Mapper.Integrate(frame.State, frame.Image)
			u.integrated++
		}
	}
	return nil
}

func (u *UpdateMap) WasSuccessful() bool {
	return u.integrated >= u.Frames
}

func (u *UpdateMap) Reset() { u.integrated = 0 }
