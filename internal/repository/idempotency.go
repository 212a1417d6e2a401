package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// IdempotencyGuard remembers request ids so a retried submission is applied
// at most once.
type IdempotencyGuard interface {
	// Reserve records key and reports false when it was already recorded.
	Reserve(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed request can be retried.
	Release(ctx context.Context, key string) error
}

const idempotencyKeyPrefix = "qc:idempotency:"

// RedisIdempotency stores request ids in redis with a TTL.
type RedisIdempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisIdempotency creates a redis-backed guard.
func NewRedisIdempotency(rdb *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{rdb: rdb, ttl: ttl}
}

func (g *RedisIdempotency) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, idempotencyKeyPrefix+key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to reserve request id")
	}
	return ok, nil
}

func (g *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to release request id")
	}
	return nil
}

// MemoryIdempotency is an in-process guard with the same TTL semantics.
type MemoryIdempotency struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

// NewMemoryIdempotency creates an in-process guard. A zero ttl keeps keys forever.
func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (g *MemoryIdempotency) Reserve(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if at, ok := g.seen[key]; ok && (g.ttl == 0 || now.Sub(at) < g.ttl) {
		return false, nil
	}
	g.seen[key] = now
	return true, nil
}

func (g *MemoryIdempotency) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}
