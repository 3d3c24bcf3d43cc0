package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyInProgress is returned by Get while the reserving request is
// still running.
var ErrIdempotencyInProgress = errors.New("idempotent request in progress")

// pendingMarker holds a reserved key until its response is saved.
const pendingMarker = "pending"

// CachedResponse is the replayable result of an idempotent request.
type CachedResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       []byte `json:"body"`
}

type RedisIdempotency struct {
	client *redis.Client
}

func NewRedisIdempotency(client *redis.Client) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func idempotencyKey(key string) string {
	return "idempotency:" + key
}

// Reserve claims key with SET NX. It reports false when another request holds
// the key or has already saved a response.
func (r *RedisIdempotency) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Release drops a reservation whose response was not cached.
func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Get returns nil, nil on a cache miss and ErrIdempotencyInProgress while the
// key is only reserved.
func (r *RedisIdempotency) Get(ctx context.Context, key string) (*CachedResponse, error) {
	val, err := r.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	if string(val) == pendingMarker {
		return nil, ErrIdempotencyInProgress
	}

	var resp CachedResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal cached response: %w", err)
	}
	return &resp, nil
}

func (r *RedisIdempotency) Save(ctx context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}
	return r.client.Set(ctx, idempotencyKey(key), data, ttl).Err()
}

type memoryEntry struct {
	resp      CachedResponse
	pending   bool
	expiresAt time.Time
}

// MemoryIdempotency is the mock-mode counterpart of RedisIdempotency.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{entries: make(map[string]memoryEntry), now: time.Now}
}

// live returns the unexpired entry for key. Callers hold mu.
func (m *MemoryIdempotency) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if ok && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (m *MemoryIdempotency) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{pending: true, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.pending {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryIdempotency) Get(_ context.Context, key string) (*CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return nil, nil
	}
	if e.pending {
		return nil, ErrIdempotencyInProgress
	}
	resp := e.resp
	return &resp, nil
}

func (m *MemoryIdempotency) Save(_ context.Context, key string, resp CachedResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{resp: resp, expiresAt: m.now().Add(ttl)}
	return nil
}
