package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter without real sleeping.
type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	cancel bool
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if f.cancel {
		return context.Canceled
	}
	f.slept = append(f.slept, d)
	f.now = f.now.Add(d)
	return nil
}

func newFakeLimiter(maxCalls int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)}
	limiter := NewRateLimiter(maxCalls, quietLogger())
	limiter.now = clock.Now
	limiter.sleep = clock.Sleep
	return limiter, clock
}

func TestRateLimiterUnderCapacity(t *testing.T) {
	limiter, clock := newFakeLimiter(4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.Wait(ctx))
		clock.now = clock.now.Add(time.Second)
	}
	assert.Empty(t, clock.slept, "under capacity must never sleep")
}

func TestRateLimiterSleepsAtCapacity(t *testing.T) {
	limiter, clock := newFakeLimiter(4)
	ctx := context.Background()

	// Four quick calls fill the window.
	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.Wait(ctx))
		clock.now = clock.now.Add(time.Second)
	}

	// The fifth waits until the oldest call leaves the window, plus a
	// one-second margin.
	require.NoError(t, limiter.Wait(ctx))
	require.Len(t, clock.slept, 1)
	// 4s have elapsed since the first call; remaining window is 56s.
	assert.Equal(t, 56*time.Second+safetyMargin, clock.slept[0])
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter, clock := newFakeLimiter(2)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))

	// After the window passes, both slots are free again.
	clock.now = clock.now.Add(61 * time.Second)
	require.NoError(t, limiter.Wait(ctx))
	assert.Empty(t, clock.slept)
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter, clock := newFakeLimiter(0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
	assert.Empty(t, clock.slept)
}

func TestRateLimiterCancellation(t *testing.T) {
	limiter, clock := newFakeLimiter(1)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))
	clock.cancel = true
	assert.ErrorIs(t, limiter.Wait(ctx), context.Canceled)
}
