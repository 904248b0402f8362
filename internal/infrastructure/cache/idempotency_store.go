package cache

import (
	"context"
	"time"

	"github.com/ton-sweeper/sweeper_service/pkg/idempotency"
)

const idempotencyKeyPrefix = "sweeper:idem:"

// IdempotencyStore shares seen delivery keys between sweeper instances
type IdempotencyStore struct {
	redis RedisClient
	ttl   time.Duration
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

func NewIdempotencyStore(redis RedisClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return &IdempotencyStore{redis: redis, ttl: ttl}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.redis.SetNX(ctx, idempotencyKeyPrefix+key, time.Now().Unix(), s.ttl)
}
