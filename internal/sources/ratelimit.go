package sources

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a sliding-window request throttle. When a request would
// exceed the configured limit, the caller is suspended until the window
// has room. Waiting is a scheduling delay, never an error, unless the
// context is cancelled first.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	requests    int

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter allowing limit requests per window,
// e.g. NewRateLimiter(5, 30*time.Second) for the NVD quota.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until the limiter admits one request. The invariant after
// return is requests-in-window <= limit.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := r.now()

		if r.requests == 0 || now.Sub(r.windowStart) >= r.window {
			r.windowStart = now
			r.requests = 1
			r.mu.Unlock()
			return nil
		}

		if r.requests < r.limit {
			r.requests++
			r.mu.Unlock()
			return nil
		}

		// Window is full: suspend until it would have room, then retry.
		delay := r.window - now.Sub(r.windowStart)
		r.mu.Unlock()

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
