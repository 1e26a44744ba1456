package domain

import (
	"sync/atomic"
	"time"
)

// PixelFormat identifies the layout of a MediaFrame's pixel buffer.
type PixelFormat int

const (
	// PixelFormatNV21 is the interleaved YUV layout most device cameras
	// deliver: full-resolution Y plane followed by interleaved VU pairs.
	PixelFormatNV21 PixelFormat = iota
	// PixelFormatI420 is the planar layout the transport consumes directly.
	PixelFormatI420
	// PixelFormatH264 marks buffers from capture drivers that hand over
	// pre-encoded Annex-B access units instead of raw pixels.
	PixelFormatH264
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatNV21:
		return "nv21"
	case PixelFormatI420:
		return "i420"
	case PixelFormatH264:
		return "h264"
	default:
		return "unknown"
	}
}

// Rotation is the clockwise degrees a frame must be turned for upright
// display. Carried as metadata; the pixel buffer itself is not rotated.
type Rotation int

const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

// MediaFrame is one camera image. Ownership: the producer hands the frame to
// at most one consumer, which must call Release exactly once; frames evicted
// under backpressure or left unclaimed are released by the queue.
type MediaFrame struct {
	Data      []byte
	Format    PixelFormat
	Width     int
	Height    int
	Rotation  Rotation
	Timestamp int64 // capture time, monotonic nanoseconds

	released atomic.Bool
	release  func()
}

// NewMediaFrame wraps a pixel buffer with its capture metadata. release
// returns the buffer to the driver; it may be nil for buffers the garbage
// collector owns.
func NewMediaFrame(data []byte, format PixelFormat, width, height int, rotation Rotation, timestamp int64, release func()) *MediaFrame {
	return &MediaFrame{
		Data:      data,
		Format:    format,
		Width:     width,
		Height:    height,
		Rotation:  rotation,
		Timestamp: timestamp,
		release:   release,
	}
}

// Release returns the pixel buffer to its driver. Safe to call more than
// once; only the first call runs the release hook.
func (f *MediaFrame) Release() {
	if f == nil {
		return
	}
	if f.released.CompareAndSwap(false, true) && f.release != nil {
		f.release()
	}
}

// Released reports whether Release has run.
func (f *MediaFrame) Released() bool {
	return f.released.Load()
}

// PlanarFrame is the transport-ready form of a MediaFrame: I420 planes plus
// the capture timestamp converted to the transport's 90 kHz clock.
type PlanarFrame struct {
	Y, U, V       []byte
	Width, Height int
	Rotation      Rotation
	Timestamp     int64  // original capture time, nanoseconds
	RTPTimestamp  uint32 // Timestamp in 90 kHz RTP ticks
}

// RTPTime converts a monotonic nanosecond timestamp to 90 kHz RTP ticks.
func RTPTime(ns int64) uint32 {
	return uint32(ns * 9 / 100000)
}

// AccessUnit is one encoded H.264 access unit in Annex-B framing.
type AccessUnit struct {
	Data     []byte
	Keyframe bool
}

// AudioChunk is one encoded Opus frame. The coordinator never inspects
// these; they flow from the capture driver straight into the audio track.
type AudioChunk struct {
	Data     []byte
	Duration time.Duration
}

// CaptureProfile is the target the camera driver is asked to open with.
type CaptureProfile struct {
	Width     int
	Height    int
	FrameRate int
}
