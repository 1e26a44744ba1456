package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config shapes the backoff schedule for operations that fail transiently,
// such as mDNS registration racing network interface bring-up.
type Config struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // wait before the second attempt
	MaxDelay     time.Duration // ceiling for the grown delay; 0 means none
	Multiplier   float64       // geometric growth factor between attempts
	Jitter       bool          // spread each delay ±25%
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// Retry runs fn until it succeeds, the attempt budget is spent, or ctx is
// done. The returned error wraps fn's last error.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("aborted after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(backoff(cfg, attempt-1)):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// backoff is the wait before attempt step+2 (step counts completed waits).
func backoff(cfg Config, step int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 0; i < step; i++ {
		d *= cfg.Multiplier
	}
	if limit := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > limit {
		d = limit
	}
	if cfg.Jitter {
		d += d * (rand.Float64()*0.5 - 0.25)
	}
	return time.Duration(d)
}
