package capture

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"arcast/internal/core/domain"
)

// OrbitTrackingEngine is the in-tree spatial tracking driver: it scripts a
// camera orbiting the origin at a fixed angular velocity, reporting a full
// pose and depth dimensions while resumed and Paused state otherwise. A
// CreateErr lets tests script each classified setup failure.
type OrbitTrackingEngine struct {
	logger *zap.SugaredLogger

	// CreateErr, when set, is returned by CreateSession. It must wrap one
	// of the domain acquisition sentinels to exercise classification.
	CreateErr error

	// Radius of the orbit in meters, Period one revolution.
	Radius float64
	Period time.Duration

	DepthWidth  int
	DepthHeight int

	mu      sync.Mutex
	created bool
	resumed bool
	epoch   time.Time
}

func NewOrbitTrackingEngine(logger *zap.SugaredLogger) *OrbitTrackingEngine {
	return &OrbitTrackingEngine{
		logger:      logger,
		Radius:      1.5,
		Period:      12 * time.Second,
		DepthWidth:  640,
		DepthHeight: 480,
	}
}

func (e *OrbitTrackingEngine) CreateSession(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.CreateErr != nil {
		return e.CreateErr
	}
	if e.created {
		return nil
	}
	e.created = true
	e.epoch = time.Now()
	e.logger.Infow("orbit tracking session created")
	return nil
}

func (e *OrbitTrackingEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.created {
		return domain.ErrSessionClosed
	}
	e.resumed = true
	return nil
}

func (e *OrbitTrackingEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumed = false
	return nil
}

// LatestFrame reports the scripted pose at the current orbit angle. While
// paused the engine still answers, with the Paused quality and no pose.
func (e *OrbitTrackingEngine) LatestFrame() (domain.TrackingSample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.created {
		return domain.TrackingSample{}, domain.ErrSessionClosed
	}

	elapsed := time.Since(e.epoch)
	sample := domain.TrackingSample{Timestamp: elapsed.Nanoseconds()}

	if !e.resumed {
		sample.State = domain.TrackingStatePaused
		return sample, nil
	}

	angle := 2 * math.Pi * float64(elapsed%e.Period) / float64(e.Period)
	sample.State = domain.TrackingStateTracking
	sample.Pose = orbitPose(angle, e.Radius)
	depthW, depthH := e.DepthWidth, e.DepthHeight
	sample.DepthWidth = &depthW
	sample.DepthHeight = &depthH
	return sample, nil
}

func (e *OrbitTrackingEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = false
	e.resumed = false
	e.logger.Infow("orbit tracking session released")
	return nil
}

// orbitPose builds a column-major world-from-camera transform for a camera
// on a circle of the given radius, always facing the origin.
func orbitPose(angle, radius float64) *[16]float64 {
	sin, cos := math.Sin(angle), math.Cos(angle)
	// Rotation about the Y axis by angle, translated onto the circle.
	return &[16]float64{
		cos, 0, -sin, 0,
		0, 1, 0, 0,
		sin, 0, cos, 0,
		radius * sin, 0, radius * cos, 1,
	}
}
