package ports

import (
	"arcast/internal/core/domain"
)

type KeyframeRequester interface {
	ForceKeyframe()
}

// VideoEncoder turns raw planar frames into H.264 access units. Capture
// drivers that emit pre-encoded video do not need one.
type VideoEncoder interface {
	KeyframeRequester
	Encode(frame domain.PlanarFrame) (domain.AccessUnit, error)
	Close() error
}

// VideoSink is the transport end of the video path. WriteFrame carries raw
// planar video through the configured encoder; WriteAccessUnit carries
// pre-encoded Annex-B units directly. Buffers passed to either call are only
// valid for the duration of the call; the sink must not retain them. Close
// detaches the track and is idempotent.
type VideoSink interface {
	WriteFrame(frame domain.PlanarFrame) error
	WriteAccessUnit(au domain.AccessUnit, rtpTimestamp uint32) error
	Close() error
}

// AudioPump copies audio chunks onto the transport until closed. Close
// detaches the track and is idempotent.
type AudioPump interface {
	Close() error
}

// MetadataChannel is an ordered datagram channel to the connected client.
// Send fails with domain.ErrChannelNotOpen before the channel opens.
// Saturated reports that the channel's send buffer is above its threshold;
// callers are expected to drop rather than queue. Close is idempotent.
type MetadataChannel interface {
	Send(payload []byte) error
	Ready() bool
	Saturated() bool
	Closed() bool
	Close() error
}
