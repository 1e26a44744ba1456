package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
)

// FrameSource owns the device camera while a session needs video. Frames
// pump into a capacity-1 drop-oldest broadcast, so the consumer always takes
// the newest frame; evicted and unclaimed frames are released immediately.
// A FrameSource serves one capture session: after Stop it is discarded.
type FrameSource struct {
	log       *zap.SugaredLogger
	camera    ports.CameraDevice
	throttler *FrameRateThrottler
	onFailure func(err error)

	hub *BroadcastQueue[*domain.MediaFrame]

	mu     sync.Mutex
	stream ports.CameraStream
	done   chan struct{}
}

// NewFrameSource wires a camera to a frame broadcast. onDrop fires for every
// frame released without reaching the consumer; onFailure fires once if
// capture dies before Stop. Both may be nil.
func NewFrameSource(log *zap.SugaredLogger, camera ports.CameraDevice, throttler *FrameRateThrottler, onDrop func(), onFailure func(err error)) *FrameSource {
	return &FrameSource{
		log:       log,
		camera:    camera,
		throttler: throttler,
		onFailure: onFailure,
		hub: NewBroadcastQueue[*domain.MediaFrame](1, func(f *domain.MediaFrame) {
			f.Release()
			if onDrop != nil {
				onDrop()
			}
		}),
	}
}

// Start opens the camera with the given profile and begins pumping frames.
func (s *FrameSource) Start(ctx context.Context, profile domain.CaptureProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return domain.ErrCameraBusy
	}

	stream, err := s.camera.Open(ctx, profile)
	if err != nil {
		return err
	}

	s.stream = stream
	s.done = make(chan struct{})
	s.throttler.Reset()

	s.log.Infow("camera capture started",
		"width", profile.Width, "height", profile.Height, "frame_rate", profile.FrameRate)

	go s.pump(stream, s.done)
	return nil
}

// Subscribe returns the consumer side of the frame broadcast. The
// subscriber owns every frame it receives and must release each one.
func (s *FrameSource) Subscribe() *Subscription[*domain.MediaFrame] {
	return s.hub.Subscribe()
}

// Dropped reports frames released before reaching the consumer.
func (s *FrameSource) Dropped() uint64 {
	return s.hub.Dropped()
}

// Stop halts capture, closes the camera stream and releases anything still
// buffered. Safe to call more than once.
func (s *FrameSource) Stop() {
	s.mu.Lock()
	stream := s.stream
	done := s.done
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return
	}

	if err := stream.Close(); err != nil {
		s.log.Warnw("camera stream close failed", "error", err)
	}
	<-done
	s.hub.Close()
	s.log.Infow("camera capture stopped", "dropped_frames", s.hub.Dropped())
}

func (s *FrameSource) pump(stream ports.CameraStream, done chan struct{}) {
	defer close(done)

	for frame := range stream.Frames() {
		s.throttler.RecordArrival()
		s.hub.Publish(frame)
	}

	// The frame channel closed. If Stop did not do it, capture died.
	s.mu.Lock()
	died := s.stream != nil
	s.stream = nil
	s.mu.Unlock()

	if !died {
		return
	}

	err := stream.Err()
	if err == nil {
		err = errors.New("camera stream ended unexpectedly")
	}
	s.hub.Close()
	s.log.Errorw("camera capture failed", "error", err)
	if s.onFailure != nil {
		s.onFailure(err)
	}
}
