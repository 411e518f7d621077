package robot

// TelemetryFrame is a RobotState plus optional attached sensor payloads,
// tagged with the state's sequence number so consumers can correlate
// control and sensing.
type TelemetryFrame struct {
	State RobotState `json:"state"`

	// Optional sensor payloads. Image is an encoded camera frame,
	// PointCloud a packed depth cloud; both may be nil on the fast path.
	Image      []byte `json:"image,omitempty"`
	PointCloud []byte `json:"point_cloud,omitempty"`
}

// Seq returns the sequence number of the embedded state.
func (f TelemetryFrame) Seq() uint64 {
	return f.State.Seq
}

// StreamKind selects which telemetry stream a subscriber wants.
type StreamKind string

const (
	// StreamState is the fast state-only stream.
	StreamState StreamKind = "state"
	// StreamFull includes camera and depth payloads.
	StreamFull StreamKind = "full"
)
