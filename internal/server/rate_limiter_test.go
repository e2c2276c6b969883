package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Unix(0, 0)}
	limiter := newRateLimiterWithClock(3, time.Second, clock.Now)

	// Given a full bucket, the burst is allowed
	for i := 0; i < 3; i++ {
		req.True(limiter.allow(), "frame %d", i)
	}

	// Then the next frame is refused
	req.False(limiter.allow())

	// When enough of the interval elapses for one token, one frame passes
	clock.Advance(400 * time.Millisecond)
	req.True(limiter.allow())
	req.False(limiter.allow())
}

func TestRateLimiter_NeverExceedsCapacity(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Unix(0, 0)}
	limiter := newRateLimiterWithClock(2, time.Second, clock.Now)

	clock.Advance(time.Hour)

	req.True(limiter.allow())
	req.True(limiter.allow())
	req.False(limiter.allow())
}

func TestRateLimiter_InvalidParametersFallBack(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Unix(0, 0)}
	limiter := newRateLimiterWithClock(0, 0, clock.Now)

	req.True(limiter.allow())
	req.False(limiter.allow())
}
