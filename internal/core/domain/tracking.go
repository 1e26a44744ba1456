package domain

import (
	"encoding/json"
	"fmt"
)

// TrackingState is the tracking engine's quality for one engine frame.
type TrackingState int

const (
	TrackingStateTracking TrackingState = iota
	TrackingStatePaused
	TrackingStateStopped
)

// String returns the wire form used on the metadata channel.
func (s TrackingState) String() string {
	switch s {
	case TrackingStateTracking:
		return "TRACKING"
	case TrackingStatePaused:
		return "PAUSED"
	case TrackingStateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ParseTrackingState parses the wire form.
func ParseTrackingState(s string) (TrackingState, error) {
	switch s {
	case "TRACKING":
		return TrackingStateTracking, nil
	case "PAUSED":
		return TrackingStatePaused, nil
	case "STOPPED":
		return TrackingStateStopped, nil
	default:
		return 0, fmt.Errorf("unknown tracking state %q", s)
	}
}

// TrackingSample is one extracted spatial-tracking frame. Immutable value;
// Pose is nil while the engine is not actively tracking, and the depth
// dimensions are nil when no depth frame was available.
type TrackingSample struct {
	Timestamp   int64 // engine frame time, nanoseconds
	Pose        *[16]float64
	State       TrackingState
	DepthWidth  *int
	DepthHeight *int
}

type trackingSamplePayload struct {
	Timestamp   int64         `json:"timestamp"`
	CameraPose  *[16]float64  `json:"cameraPose"`
	State       string        `json:"trackingState"`
	DepthWidth  *int          `json:"depthWidth"`
	DepthHeight *int          `json:"depthHeight"`
}

// EncodeTrackingSample serializes a sample to the metadata channel's JSON
// payload. Absent pose and depth fields encode as null.
func EncodeTrackingSample(s TrackingSample) ([]byte, error) {
	return json.Marshal(trackingSamplePayload{
		Timestamp:   s.Timestamp,
		CameraPose:  s.Pose,
		State:       s.State.String(),
		DepthWidth:  s.DepthWidth,
		DepthHeight: s.DepthHeight,
	})
}

// DecodeTrackingSample parses a metadata channel payload back into a sample.
func DecodeTrackingSample(data []byte) (TrackingSample, error) {
	var p trackingSamplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return TrackingSample{}, fmt.Errorf("failed to decode tracking sample: %w", err)
	}
	state, err := ParseTrackingState(p.State)
	if err != nil {
		return TrackingSample{}, err
	}
	return TrackingSample{
		Timestamp:   p.Timestamp,
		Pose:        p.CameraPose,
		State:       state,
		DepthWidth:  p.DepthWidth,
		DepthHeight: p.DepthHeight,
	}, nil
}
