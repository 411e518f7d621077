// Package perception defines the narrow interface to the semantic
// segmentation collaborator. The perception stack itself lives outside the
// orchestration core; operations consume it per-frame through Segmenter.
package perception

import "context"

// Detection is one labeled region in an image.
type Detection struct {
	Label      string
	Mask       []byte
	Confidence float64
}

// Segmenter segments an image into labeled detections. Implementations are
// stateless and safe to invoke per-frame. Failures (model unavailable,
// malformed image) surface as an empty result, never a fatal error.
type Segmenter interface {
	Segment(ctx context.Context, image []byte) []Detection
}

// StaticSegmenter returns a fixed set of detections for any non-empty
// image. It stands in for the real model in simulation and tests.
type StaticSegmenter struct {
	Detections []Detection
}

func (s *StaticSegmenter) Segment(ctx context.Context, image []byte) []Detection {
	if len(image) == 0 {
		return nil
	}
	out := make([]Detection, len(s.Detections))
	copy(out, s.Detections)
	return out
}
