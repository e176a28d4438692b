// Package cache provides the key/value store used for session tracking.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"statwise/internal/metrics"
)

// Cache is the subset of key/value operations the engine relies on.
// Get reports a miss with ok=false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	CountKeys(ctx context.Context, pattern string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}

const scanBatch = 500

// Redis implements Cache on go-redis.
type Redis struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRedis(client redis.UniversalClient, logger *slog.Logger, m *metrics.Metrics) *Redis {
	return &Redis{client: client, logger: logger, metrics: m}
}

// Connect parses url, opens a client and pings it until it answers or
// maxWait elapses.
func Connect(ctx context.Context, url string, maxWait time.Duration, logger *slog.Logger, m *metrics.Metrics) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis not ready", slog.String("addr", opts.Addr), slog.Any("error", err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connected", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))
	return NewRedis(client, logger, m), nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		r.metrics.CacheOp("get", "miss")
		return "", false, nil
	}
	if err != nil {
		r.metrics.CacheOp("get", "error")
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	r.metrics.CacheOp("get", "hit")
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.metrics.CacheOp("set", "error")
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	r.metrics.CacheOp("set", "ok")
	return nil
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.metrics.CacheOp("del", "error")
		return fmt.Errorf("cache del: %w", err)
	}
	r.metrics.CacheOp("del", "ok")
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.metrics.CacheOp("exists", "error")
		return false, fmt.Errorf("cache exists %s: %w", key, err)
	}
	r.metrics.CacheOp("exists", "ok")
	return n > 0, nil
}

// CountKeys counts keys matching a glob pattern using SCAN.
func (r *Redis) CountKeys(ctx context.Context, pattern string) (int64, error) {
	keys, err := r.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// Keys lists keys matching a glob pattern using SCAN.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	err := r.scan(ctx, pattern, func(batch []string) {
		for _, k := range batch {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *Redis) scan(ctx context.Context, pattern string, fn func([]string)) error {
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			r.metrics.CacheOp("scan", "error")
			return fmt.Errorf("cache scan %s: %w", pattern, err)
		}
		fn(batch)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	r.metrics.CacheOp("scan", "ok")
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
