package ports

import (
	"context"

	"arcast/internal/core/domain"
)

// CameraDevice opens the device camera. Only one stream may be open at a
// time; Open while a stream is live returns domain.ErrCameraBusy.
type CameraDevice interface {
	Open(ctx context.Context, profile domain.CaptureProfile) (CameraStream, error)
}

// CameraStream delivers frames until Close. Each frame must be released by
// its consumer exactly once. After Frames closes, Err reports why: nil for a
// clean Close, the terminal capture error otherwise.
type CameraStream interface {
	Frames() <-chan *domain.MediaFrame
	Err() error
	Close() error
}

// AudioSource captures encoded audio chunks from the device microphone.
type AudioSource interface {
	Start(ctx context.Context) (<-chan domain.AudioChunk, error)
	Stop() error
}

// TrackingEngine wraps the platform spatial tracking runtime.
//
// CreateSession classifies setup failures by wrapping the matching domain
// sentinel (ErrEngineMissing, ErrEngineOutdated, ErrHostAppOutdated,
// ErrDeviceIncompatible, ErrCameraBusy, ErrPermissionDenied). LatestFrame
// returns the most recent engine state; an error means no usable frame was
// available this tick, not that the session is broken.
type TrackingEngine interface {
	CreateSession(ctx context.Context) error
	Resume() error
	Pause() error
	LatestFrame() (domain.TrackingSample, error)
	Close() error
}
