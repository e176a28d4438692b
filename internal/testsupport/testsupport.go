package testsupport

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"statwise/internal/cache"
)

// GetLogger returns a logger that only shows errors.
func GetLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// MockTimeProvider is a settable clock.
type MockTimeProvider struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

func NewMockTimeProvider(t time.Time) *MockTimeProvider {
	return &MockTimeProvider{CurrentTime: t}
}

func (m *MockTimeProvider) Now(loc *time.Location) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime.In(loc)
}

// Advance moves the clock forward.
func (m *MockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// SetupTestCache starts an in-process redis and returns a cache on top of it.
func SetupTestCache(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedis(client, GetLogger(), nil), mr
}

// SequenceIDs returns an id generator yielding ids in order.
func SequenceIDs(ids ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id, nil
	}
}
