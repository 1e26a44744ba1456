package services

import (
	"sync"
	"time"
)

// rateWindow is the measurement window for arrival rates. A rate is
// published at most once per window.
const rateWindow = time.Second

// FrameRateThrottler measures how often media items arrive and throttles
// rate publications to at most one per window. The first arrival after a
// reset only anchors the window; it is not counted, so the next publication
// covers whole inter-arrival intervals.
type FrameRateThrottler struct {
	mu          sync.Mutex
	windowStart time.Time
	arrivals    int
	rate        float64

	onRate func(rate float64)
	now    func() time.Time
}

// NewFrameRateThrottler returns a throttler that calls onRate with each
// published rate. onRate may be nil.
func NewFrameRateThrottler(onRate func(rate float64)) *FrameRateThrottler {
	return &FrameRateThrottler{
		onRate: onRate,
		now:    time.Now,
	}
}

// RecordArrival notes one arrival. When more than one window has elapsed
// since the anchor it publishes arrivals*1000/elapsed_ms and starts a new
// window.
func (t *FrameRateThrottler) RecordArrival() {
	t.mu.Lock()

	now := t.now()
	if t.windowStart.IsZero() {
		t.windowStart = now
		t.arrivals = 0
		t.mu.Unlock()
		return
	}

	t.arrivals++
	elapsed := now.Sub(t.windowStart)
	if elapsed <= rateWindow {
		t.mu.Unlock()
		return
	}

	rate := float64(t.arrivals) * float64(time.Second) / float64(elapsed)
	t.rate = rate
	t.arrivals = 0
	t.windowStart = now
	onRate := t.onRate
	t.mu.Unlock()

	// publish outside the lock so the callback can read Rate()
	if onRate != nil {
		onRate(rate)
	}
}

// Reset forgets the current window and the last published rate.
func (t *FrameRateThrottler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windowStart = time.Time{}
	t.arrivals = 0
	t.rate = 0
}

// Rate returns the most recently published rate, zero after a reset.
func (t *FrameRateThrottler) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}
