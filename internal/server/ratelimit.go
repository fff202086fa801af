package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RateLimiter bounds how often a user may publish messages.
type RateLimiter interface {
	Allow(ctx context.Context, userId uuid.UUID) bool
}

// LocalRateLimiter is a per-user token bucket held in process memory.
// Suited to a single gateway instance; use RedisRateLimiter when several
// gateways share traffic for the same users.
type LocalRateLimiter struct {
	mu       sync.Mutex
	buckets  map[uuid.UUID]*bucket
	capacity float64
	refill   float64
	now      func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLocalRateLimiter allows bursts of up to limit messages, refilled at
// limit per window.
func NewLocalRateLimiter(limit int, window time.Duration) *LocalRateLimiter {
	return &LocalRateLimiter{
		buckets:  make(map[uuid.UUID]*bucket),
		capacity: float64(limit),
		refill:   float64(limit) / window.Seconds(),
		now:      time.Now,
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, userId uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[userId]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[userId] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.refill
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--

	return true
}

// RedisRateLimiter counts messages per user in a fixed window shared by
// every gateway instance. It fails open when redis is unreachable so a
// cache outage degrades to unlimited sends instead of a chat outage.
type RedisRateLimiter struct {
	rdb    *redis.Client
	log    *log.Logger
	limit  int64
	window time.Duration
}

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, l *log.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		rdb:    rdb,
		log:    l,
		limit:  int64(limit),
		window: window,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, userId uuid.UUID) bool {
	key := fmt.Sprintf("rate_limit:message:%s", userId)

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		r.log.Printf("rate limiter: incr %s: %v", key, err)
		return true
	}

	if count == 1 {
		if err := r.rdb.Expire(ctx, key, r.window).Err(); err != nil {
			r.log.Printf("rate limiter: expire %s: %v", key, err)
		}
	}

	return count <= r.limit
}
