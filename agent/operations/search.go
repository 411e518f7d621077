package operations

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mobile-manipulation/conductor/perception"
	"github.com/mobile-manipulation/conductor/robot"
)

// SearchForObject scans for a labeled object: it watches the full telemetry
// stream, segments each camera frame, and rotates the base between frames
// until the label is seen with sufficient confidence or the sweep budget is
// spent. On success it records the detection and the robot's pose into the
// shared pickup state.
type SearchForObject struct {
	Deps
	Label         string
	State         *PickupState
	MinConfidence float64
	MaxSweeps     int

	found bool
}

// NewSearchForObject creates a search for label writing into state.
func NewSearchForObject(deps Deps, label string, state *PickupState) *SearchForObject {
	return &SearchForObject{
		Deps:          deps,
		Label:         label,
		State:         state,
		MinConfidence: 0.5,
		MaxSweeps:     8,
	}
}

func (s *SearchForObject) Name() string { return "search_for_object" }

func (s *SearchForObject) CanStart(ctx context.Context) bool {
	return s.Label != "" && s.State != nil
}

func (s *SearchForObject) Run(ctx context.Context) error {
	frames, cancel := s.Robot.Subscribe(robot.StreamFull)
	defer cancel()

	step := 2 * math.Pi / float64(s.MaxSweeps)

	for sweep := 0; sweep < s.MaxSweeps; sweep++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-frames:
			if det := s.match(ctx, frame.Image); det != nil {
				s.State.Target = det
				s.State.TargetPose = frame.State.Pose
				s.found = true
				return nil
			}
		}

		pose := s.Robot.State().Pose
		pose.Theta += step
		if err := s.Robot.MoveTo(ctx, pose, true); err != nil {
			return fmt.Errorf("search sweep %d: %w", sweep, err)
		}
	}

	return fmt.Errorf("object %q not found after %d sweeps", s.Label, s.MaxSweeps)
}

// match segments one frame. An empty segmentation result (perception
// unavailable) is not an error; the sweep just continues.
func (s *SearchForObject) match(ctx context.Context, image []byte) *perception.Detection {
	for _, det := range s.Segmenter.Segment(ctx, image) {
		if det.Confidence < s.MinConfidence {
			continue
		}
		if strings.Contains(strings.ToLower(det.Label), strings.ToLower(s.Label)) {
			d := det
			return &d
		}
	}
	return nil
}

func (s *SearchForObject) WasSuccessful() bool {
	return s.found && s.State.Target != nil
}

func (s *SearchForObject) Reset() {
	s.found = false
	if s.State != nil {
		s.State.Target = nil
	}
}
