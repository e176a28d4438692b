package cache_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/cache"
	"statwise/internal/metrics"
)

func newTestCache(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cache.NewRedis(client, logger, metrics.New(prometheus.NewRegistry(), "test")), mr
}

func TestGetSetDelExists(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Del(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, c.Del(ctx))
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "session", "1", 30*time.Second))
	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountKeysAndKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	for i := 0; i < 1200; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("hb:p1:%d", i), "1", time.Minute))
	}
	require.NoError(t, c.Set(ctx, "hb:p2:x", "1", time.Minute))
	require.NoError(t, c.Set(ctx, "other", "1", time.Minute))

	n, err := c.CountKeys(ctx, "hb:p1:*")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), n)

	keys, err := c.Keys(ctx, "hb:p2:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"hb:p2:x"}, keys)
}

func TestErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(ctx, "k", "v", time.Second))
}

func TestConnectRejectsBadURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := cache.Connect(context.Background(), "://nope", time.Second, logger, nil)
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := cache.Connect(context.Background(), "redis://"+mr.Addr()+"/0", time.Second, logger, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))
}
