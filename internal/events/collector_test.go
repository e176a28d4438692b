package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/apperr"
	"statwise/internal/events"
	"statwise/internal/pkg/geoip"
	"statwise/internal/testsupport"
	"statwise/internal/visitors"
)

type staticLocator map[string]geoip.Location

func (s staticLocator) Lookup(ip string) (geoip.Location, bool) {
	loc, ok := s[ip]
	return loc, ok
}

func setupCollector(t *testing.T, locator events.Locator) (*events.Collector, *testsupport.FakeStore, *visitors.Tracker, *testsupport.MockTimeProvider) {
	t.Helper()
	c, _ := testsupport.SetupTestCache(t)
	clock := testsupport.NewMockTimeProvider(time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC))
	tracker := visitors.NewTracker(c, testsupport.GetLogger(), visitors.TrackerOptions{
		SessionTTL:   30 * time.Minute,
		DurationTTL:  time.Hour,
		TimeProvider: clock,
		NewID:        testsupport.SequenceIDs("101", "202"),
	})
	store := testsupport.NewFakeStore()
	collector := events.NewCollector(tracker, store, locator, "secret", testsupport.GetLogger(), clock)
	return collector, store, tracker, clock
}

func TestCollectPageviewAssignsSession(t *testing.T) {
	ctx := context.Background()
	collector, store, tracker, clock := setupCollector(t, nil)

	hit := events.Hit{
		PID:        "pid-1",
		IPAddress:  "203.0.113.7",
		UserAgent:  "Mozilla/5.0",
		Dimensions: events.Dimensions{Page: "/pricing", Host: "example.com"},
	}

	first, err := collector.CollectPageview(ctx, hit)
	require.NoError(t, err)
	assert.True(t, first.Unique)
	assert.Equal(t, "101", first.PSID)
	assert.Equal(t, clock.Now(time.UTC), first.Created)

	clock.Advance(2 * time.Minute)
	second, err := collector.CollectPageview(ctx, hit)
	require.NoError(t, err)
	assert.False(t, second.Unique)
	assert.Equal(t, "101", second.PSID)

	require.Len(t, store.Pageviews, 2)

	d, ok, err := tracker.SessionDuration(ctx, "101", "pid-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, d)
}

func TestCollectPageviewEnrichesDimensions(t *testing.T) {
	locator := staticLocator{"198.51.100.1": {Country: "DE", Region: "BE", City: "Berlin"}}
	collector, store, _, _ := setupCollector(t, locator)

	_, err := collector.CollectPageview(context.Background(), events.Hit{
		PID:       "pid-1",
		IPAddress: "198.51.100.1",
		UserAgent: "ua",
		Dimensions: events.Dimensions{
			Page:     "https://example.com/docs/start",
			Referrer: "https://www.google.com/search?q=statwise",
		},
	})
	require.NoError(t, err)
	require.Len(t, store.Pageviews, 1)

	pv := store.Pageviews[0]
	assert.Equal(t, "example.com", pv.Host)
	assert.Equal(t, "/docs/start", pv.Page)
	assert.Equal(t, "Google", pv.Source)
	assert.Equal(t, "search", pv.Medium)
	assert.Equal(t, "DE", pv.Country)
	assert.Equal(t, "Berlin", pv.City)
}

func TestCollectPageviewKeepsExplicitUTMSource(t *testing.T) {
	collector, store, _, _ := setupCollector(t, nil)

	_, err := collector.CollectPageview(context.Background(), events.Hit{
		PID:        "pid-1",
		IPAddress:  "1.1.1.1",
		Dimensions: events.Dimensions{Page: "/", Host: "example.com", Referrer: "https://t.co/x", Source: "newsletter"},
	})
	require.NoError(t, err)
	assert.Equal(t, "newsletter", store.Pageviews[0].Source)
	assert.Empty(t, store.Pageviews[0].Medium)
}

func TestCollectCustomEvent(t *testing.T) {
	collector, store, _, _ := setupCollector(t, nil)
	ctx := context.Background()

	_, err := collector.CollectCustomEvent(ctx, events.Hit{PID: "pid-1"})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	ev, err := collector.CollectCustomEvent(ctx, events.Hit{
		PID:  "pid-1",
		Name: "signup",
		Meta: map[string]string{"plan": "pro"},
	})
	require.NoError(t, err)
	assert.Equal(t, "101", ev.PSID)
	require.Len(t, store.Events, 1)
	assert.Equal(t, "pro", store.Events[0].Meta["plan"])
}

func TestCollectWriterFailureIsInternal(t *testing.T) {
	collector, store, _, _ := setupCollector(t, nil)
	store.InsertErr = errors.New("connection refused")

	_, err := collector.CollectPageview(context.Background(), events.Hit{PID: "pid-1"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Equal(t, apperr.InternalMessage, apperr.PublicMessage(err))
}

func TestCollectPerformanceAndCaptcha(t *testing.T) {
	locator := staticLocator{"198.51.100.1": {Country: "FR"}}
	collector, store, _, clock := setupCollector(t, locator)
	ctx := context.Background()

	require.NoError(t, collector.CollectPerformance(ctx, "198.51.100.1", events.PerformanceTiming{PID: "pid-1", Page: "/", TTFB: 120}))
	require.NoError(t, collector.CollectCaptcha(ctx, "198.51.100.1", events.CaptchaPass{PID: "pid-1", Browser: "Firefox"}))

	require.Len(t, store.Timings, 1)
	assert.Equal(t, "FR", store.Timings[0].Country)
	assert.Equal(t, clock.Now(time.UTC), store.Timings[0].Created)

	require.Len(t, store.CaptchaRows, 1)
	assert.Equal(t, "FR", store.CaptchaRows[0].Country)

	assert.True(t, apperr.Is(collector.CollectCaptcha(ctx, "", events.CaptchaPass{}), apperr.KindBadRequest))
}

func TestCollectPageviewMarksVisitorOnline(t *testing.T) {
	ctx := context.Background()
	collector, _, tracker, _ := setupCollector(t, nil)

	visit := func(ip string) {
		_, err := collector.CollectPageview(ctx, events.Hit{
			PID:        "pid-1",
			IPAddress:  ip,
			UserAgent:  "Mozilla/5.0",
			Dimensions: events.Dimensions{Page: "/", Host: "example.com"},
		})
		require.NoError(t, err)
	}

	visit("203.0.113.7")
	online, err := tracker.Online(ctx, "pid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), online)

	visit("203.0.113.7")
	visit("198.51.100.20")
	online, err = tracker.Online(ctx, "pid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), online)

	online, err = tracker.Online(ctx, "pid-2")
	require.NoError(t, err)
	assert.Zero(t, online)
}
