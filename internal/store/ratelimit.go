package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a sliding-window log kept in one ZSET per subject.
type RedisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

// Allow records a hit for subject and reports whether at most limit hits fall
// inside the trailing window.
func (r *RedisRateLimiter) Allow(ctx context.Context, subject string, limit int, window time.Duration) (bool, int, error) {
	now := r.now()
	key := "ratelimit:" + subject

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	// Nanosecond members keep hits in the same millisecond distinct
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: now.UnixNano()})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit pipeline: %w", err)
	}

	n := int(count.Val())
	return n <= limit, max(limit-n, 0), nil
}

// MemoryRateLimiter is the in-process equivalent used in mock mode.
type MemoryRateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, subject string, limit int, window time.Duration) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)
	kept := m.hits[subject][:0]
	for _, t := range m.hits[subject] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	m.hits[subject] = kept

	n := len(kept)
	return n <= limit, max(limit-n, 0), nil
}
