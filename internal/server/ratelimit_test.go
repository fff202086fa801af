package server

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func Test_LocalRateLimiter(t *testing.T) {
	limiter := NewLocalRateLimiter(3, time.Minute)

	current := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	userId := uuid.New()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(context.Background(), userId), "send %d should be allowed", i+1)
	}
	assert.False(t, limiter.Allow(context.Background(), userId))

	// Another user has an independent bucket.
	assert.True(t, limiter.Allow(context.Background(), uuid.New()))

	// Tokens refill over time; 20s at 3/min earns one send back.
	current = current.Add(20 * time.Second)
	assert.True(t, limiter.Allow(context.Background(), userId))
	assert.False(t, limiter.Allow(context.Background(), userId))
}

func Test_LocalRateLimiterCapsAtBurst(t *testing.T) {
	limiter := NewLocalRateLimiter(2, time.Second)

	current := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	userId := uuid.New()
	assert.True(t, limiter.Allow(context.Background(), userId))

	// A long idle period must not accumulate more than the burst size.
	current = current.Add(time.Hour)
	assert.True(t, limiter.Allow(context.Background(), userId))
	assert.True(t, limiter.Allow(context.Background(), userId))
	assert.False(t, limiter.Allow(context.Background(), userId))
}
