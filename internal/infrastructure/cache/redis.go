// Package cache holds the Redis-backed pieces shared between sweeper
// instances: price quotes and webhook delivery keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/config"
	"github.com/ton-sweeper/sweeper_service/pkg/metrics"
)

// ErrCacheMiss is returned by Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

const (
	dialTimeout = 5 * time.Second
	opTimeout   = time.Second
)

// RedisClient stores JSON values under string keys
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type redisClient struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisClient connects and pings once. Reads and writes time out after opTimeout.
func NewRedisClient(cfg *config.RedisConfig, logger *zap.Logger) (RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.Int("db", cfg.DB))
	return &redisClient{client: rdb, logger: logger}, nil
}

func (r *redisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) (err error) {
	defer observe("set", time.Now(), &err)
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

// Get unmarshals the value at key into dest
func (r *redisClient) Get(ctx context.Context, key string, dest interface{}) (err error) {
	defer observe("get", time.Now(), &err)
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("key '%s': %w", key, ErrCacheMiss)
	} else if err != nil {
		return fmt.Errorf("failed to get key '%s' from Redis: %w", key, err)
	}
	return json.Unmarshal(val, dest)
}

// SetNX sets key only if it does not exist and reports whether it did
func (r *redisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (ok bool, err error) {
	defer observe("setnx", time.Now(), &err)
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.SetNX(ctx, key, data, expiration).Result()
}

func (r *redisClient) Del(ctx context.Context, key string) (err error) {
	defer observe("del", time.Now(), &err)
	return r.client.Del(ctx, key).Err()
}

func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClient) Close() error {
	return r.client.Close()
}

func observe(operation string, start time.Time, err *error) {
	metrics.ExternalRequestDuration.WithLabelValues("redis", operation, resultLabel(*err)).
		Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCacheMiss):
		return "miss"
	default:
		return "error"
	}
}
