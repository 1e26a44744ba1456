package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
)

const defaultPollInterval = 33 * time.Millisecond

// PoseSampler owns the spatial tracking engine. While resumed it polls the
// engine roughly every frame interval and publishes a TrackingSample for
// every new engine frame that is actually tracking; frames in any other
// state only move the tracking state in the state store. Samples fan out
// through a small drop-oldest broadcast, so consumers always hold a fresh
// pose.
//
// The sampler outlives individual sessions: Close pauses, releases the
// engine and forgets the session, after which CreateSession may start over.
type PoseSampler struct {
	log       *zap.SugaredLogger
	engine    ports.TrackingEngine
	store     *StateStore
	throttler *FrameRateThrottler
	interval  time.Duration

	hub *BroadcastQueue[domain.TrackingSample]

	mu        sync.Mutex
	created   bool
	createErr error
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewPoseSampler(log *zap.SugaredLogger, engine ports.TrackingEngine, store *StateStore, throttler *FrameRateThrottler, interval time.Duration) *PoseSampler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PoseSampler{
		log:       log,
		engine:    engine,
		store:     store,
		throttler: throttler,
		interval:  interval,
		hub:       NewBroadcastQueue[domain.TrackingSample](2, nil),
	}
}

// CreateSession configures the tracking engine. Calling it with a live
// session is a no-op; after a classified failure every further call returns
// the same error until Close forgets the session.
func (s *PoseSampler) CreateSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}
	if s.created {
		return nil
	}

	if err := s.engine.CreateSession(ctx); err != nil {
		s.createErr = err
		s.log.Errorw("tracking session creation failed",
			"error", err, "user_message", domain.UserMessage(err))
		return err
	}

	s.created = true
	s.log.Infow("tracking session created")
	return nil
}

// Resume starts the polling loop. Resuming a running sampler is a no-op.
func (s *PoseSampler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}
	if !s.created {
		return domain.ErrSessionClosed
	}
	if s.cancel != nil {
		return nil
	}

	if err := s.engine.Resume(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.throttler.Reset()
	go s.poll(ctx, s.done)
	return nil
}

// Pause stops the polling loop and pauses the engine. Pausing a sampler
// that is not running is a no-op.
func (s *PoseSampler) Pause() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	return s.engine.Pause()
}

// Subscribe returns a consumer view of the sample broadcast. The broadcast
// survives Close; cancel the subscription when the consumer goes away.
func (s *PoseSampler) Subscribe() *Subscription[domain.TrackingSample] {
	return s.hub.Subscribe()
}

// Dropped reports samples evicted before reaching a consumer.
func (s *PoseSampler) Dropped() uint64 {
	return s.hub.Dropped()
}

// Close pauses the loop, releases the engine and forgets the session. A
// sampler without a session ignores the call.
func (s *PoseSampler) Close() error {
	if err := s.Pause(); err != nil {
		s.log.Warnw("tracking pause during close failed", "error", err)
	}

	s.mu.Lock()
	created := s.created
	s.created = false
	s.createErr = nil
	s.mu.Unlock()

	if !created {
		return nil
	}

	if err := s.engine.Close(); err != nil {
		return err
	}
	s.log.Infow("tracking session released")
	return nil
}

func (s *PoseSampler) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastTimestamp int64
	lastState := domain.TrackingState(-1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := s.engine.LatestFrame()
		if err != nil {
			s.log.Debugw("tracking frame unavailable", "error", err)
			continue
		}

		// the engine may serve the same frame across ticks
		if sample.Timestamp != 0 && sample.Timestamp == lastTimestamp {
			continue
		}
		lastTimestamp = sample.Timestamp

		if sample.State != lastState {
			lastState = sample.State
			s.store.SetTrackingState(sample.State)
		}

		if sample.State != domain.TrackingStateTracking {
			continue
		}

		s.throttler.RecordArrival()
		s.hub.Publish(sample)
	}
}
