package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// safetyMargin pads the sleep so the oldest call is strictly outside the
// window when we wake.
const safetyMargin = time.Second

// RateLimiter caps advisor calls to a rolling window. It is cooperative:
// Wait blocks the single engine goroutine until a slot is free, so there
// is never more than one in-flight advisor request per engine.
type RateLimiter struct {
	maxCalls int
	window   time.Duration
	calls    []time.Time
	logger   *logrus.Logger

	// overridable for tests
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRateLimiter allows maxCallsPerMinute calls per rolling 60s window.
// A non-positive limit disables rate limiting.
func NewRateLimiter(maxCallsPerMinute int, logger *logrus.Logger) *RateLimiter {
	if logger == nil {
		logger = logrus.New()
	}
	return &RateLimiter{
		maxCalls: maxCallsPerMinute,
		window:   time.Minute,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until a call slot is available, then records the call.
// Returns early with the context's error if ctx is cancelled while
// waiting.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.maxCalls <= 0 {
		return nil
	}

	now := r.now()
	r.prune(now)

	if len(r.calls) >= r.maxCalls {
		wait := r.window - now.Sub(r.calls[0]) + safetyMargin
		if wait > 0 {
			r.logger.WithField("wait", wait.Round(time.Millisecond).String()).
				Info("Advisor rate limit reached, waiting")
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
		}
		now = r.now()
		r.prune(now)
	}

	r.calls = append(r.calls, now)
	return nil
}

// prune drops call timestamps older than the window.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.calls) && !r.calls[i].After(cutoff) {
		i++
	}
	r.calls = r.calls[i:]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
