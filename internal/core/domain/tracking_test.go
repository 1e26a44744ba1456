package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTrackingSample_FullFrame(t *testing.T) {
	pose := [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0.5, 1.5, -2, 1}
	w, h := 160, 90
	sample := TrackingSample{
		Timestamp:   123456789,
		Pose:        &pose,
		State:       TrackingStateTracking,
		DepthWidth:  &w,
		DepthHeight: &h,
	}

	data, err := EncodeTrackingSample(sample)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Contains(t, wire, "timestamp")
	assert.Contains(t, wire, "cameraPose")
	assert.Contains(t, wire, "trackingState")
	assert.Contains(t, wire, "depthWidth")
	assert.Contains(t, wire, "depthHeight")
	assert.JSONEq(t, `"TRACKING"`, string(wire["trackingState"]))

	decoded, err := DecodeTrackingSample(data)
	require.NoError(t, err)
	assert.Equal(t, sample, decoded)
}

func TestEncodeTrackingSample_AbsentFieldsAreNull(t *testing.T) {
	sample := TrackingSample{Timestamp: 42, State: TrackingStatePaused}

	data, err := EncodeTrackingSample(sample)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "null", string(wire["cameraPose"]))
	assert.Equal(t, "null", string(wire["depthWidth"]))
	assert.Equal(t, "null", string(wire["depthHeight"]))

	decoded, err := DecodeTrackingSample(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.Pose)
	assert.Nil(t, decoded.DepthWidth)
	assert.Equal(t, TrackingStatePaused, decoded.State)
}

func TestDecodeTrackingSample_RejectsUnknownState(t *testing.T) {
	_, err := DecodeTrackingSample([]byte(`{"timestamp":1,"trackingState":"SPINNING"}`))
	assert.Error(t, err)
}

func TestDecodeTrackingSample_RejectsGarbage(t *testing.T) {
	_, err := DecodeTrackingSample([]byte(`not json`))
	assert.Error(t, err)
}

func TestTrackingState_Strings(t *testing.T) {
	for _, state := range []TrackingState{TrackingStateTracking, TrackingStatePaused, TrackingStateStopped} {
		parsed, err := ParseTrackingState(state.String())
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
	}

	_, err := ParseTrackingState("tracking")
	assert.Error(t, err, "wire form is upper case")
}
