package capture

import (
	"context"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
)

func fastProfile() domain.CaptureProfile {
	return domain.CaptureProfile{Width: 64, Height: 48, FrameRate: 200}
}

func unitTypes(t *testing.T, data []byte) []h264.NALUType {
	t.Helper()
	var annexB h264.AnnexB
	require.NoError(t, annexB.Unmarshal(data))
	types := make([]h264.NALUType, 0, len(annexB))
	for _, nalu := range annexB {
		require.NotEmpty(t, nalu)
		types = append(types, h264.NALUType(nalu[0]&0x1F))
	}
	return types
}

func TestTestPatternCamera_FirstUnitIsKeyframe(t *testing.T) {
	camera := NewTestPatternCamera(domain.PixelFormatH264, domain.Rotation0, zap.NewNop().Sugar())
	stream, err := camera.Open(context.Background(), fastProfile())
	require.NoError(t, err)
	defer stream.Close()

	select {
	case frame := <-stream.Frames():
		defer frame.Release()
		assert.Equal(t, domain.PixelFormatH264, frame.Format)
		assert.Equal(t, []h264.NALUType{h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeIDR},
			unitTypes(t, frame.Data))
	case <-time.After(time.Second):
		t.Fatal("no frame synthesized")
	}
}

func TestTestPatternCamera_ForceKeyframe(t *testing.T) {
	camera := NewTestPatternCamera(domain.PixelFormatH264, domain.Rotation0, zap.NewNop().Sugar())
	stream, err := camera.Open(context.Background(), fastProfile())
	require.NoError(t, err)
	defer stream.Close()

	// skip past the leading keyframe
	first := <-stream.Frames()
	first.Release()

	camera.ForceKeyframe()

	deadline := time.After(time.Second)
	for {
		select {
		case frame := <-stream.Frames():
			types := unitTypes(t, frame.Data)
			frame.Release()
			if types[0] == h264.NALUTypeSPS {
				return // keyframe arrived
			}
		case <-deadline:
			t.Fatal("forced keyframe never arrived")
		}
	}
}

func TestTestPatternCamera_SingleStreamOwner(t *testing.T) {
	camera := NewTestPatternCamera(domain.PixelFormatH264, domain.Rotation0, zap.NewNop().Sugar())
	stream, err := camera.Open(context.Background(), fastProfile())
	require.NoError(t, err)

	_, err = camera.Open(context.Background(), fastProfile())
	assert.ErrorIs(t, err, domain.ErrCameraBusy)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close(), "close is idempotent")

	// the device is free again
	stream2, err := camera.Open(context.Background(), fastProfile())
	require.NoError(t, err)
	stream2.Close()
}

func TestTestPatternCamera_TimestampsIncrease(t *testing.T) {
	camera := NewTestPatternCamera(domain.PixelFormatH264, domain.Rotation0, zap.NewNop().Sugar())
	stream, err := camera.Open(context.Background(), fastProfile())
	require.NoError(t, err)
	defer stream.Close()

	var last int64 = -1
	for i := 0; i < 3; i++ {
		select {
		case frame := <-stream.Frames():
			assert.Greater(t, frame.Timestamp, last)
			last = frame.Timestamp
			frame.Release()
		case <-time.After(time.Second):
			t.Fatal("frame stream stalled")
		}
	}
}

func TestTestPatternCamera_RawMode(t *testing.T) {
	camera := NewTestPatternCamera(domain.PixelFormatI420, domain.Rotation90, zap.NewNop().Sugar())
	stream, err := camera.Open(context.Background(), fastProfile())
	require.NoError(t, err)
	defer stream.Close()

	select {
	case frame := <-stream.Frames():
		defer frame.Release()
		assert.Equal(t, domain.PixelFormatI420, frame.Format)
		assert.Equal(t, domain.Rotation90, frame.Rotation)
		assert.Len(t, frame.Data, 64*48*3/2, "full I420 buffer")
	case <-time.After(time.Second):
		t.Fatal("no frame synthesized")
	}
}

func TestTestPatternCamera_CleanCloseHasNoError(t *testing.T) {
	camera := NewTestPatternCamera(domain.PixelFormatH264, domain.Rotation0, zap.NewNop().Sugar())
	stream, err := camera.Open(context.Background(), fastProfile())
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Err())

	// the frame channel drains and closes
	for range stream.Frames() {
	}
}
