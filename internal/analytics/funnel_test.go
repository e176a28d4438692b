package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/analytics"
	"statwise/internal/apperr"
	"statwise/internal/events"
)

func TestParsePages(t *testing.T) {
	pages, err := analytics.ParsePages(`["/", "/pricing", "signup"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/pricing", "signup"}, pages)

	testCases := []struct {
		name string
		raw  string
		kind apperr.Kind
	}{
		{"empty", "", apperr.KindBadRequest},
		{"not json", "[/a, /b", apperr.KindBadRequest},
		{"object", `{"a":1}`, apperr.KindBadRequest},
		{"one step", `["/a"]`, apperr.KindUnprocessable},
		{"eleven steps", `["1","2","3","4","5","6","7","8","9","10","11"]`, apperr.KindUnprocessable},
		{"non string step", `["/a", 2]`, apperr.KindUnprocessable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := analytics.ParsePages(tc.raw)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestBuildFunnel(t *testing.T) {
	stmt := analytics.BuildFunnel("p1", threeDays(t, "UTC"), []string{"/", "signup"}, 0)

	assert.Equal(t, "funnel", stmt.Name)
	assert.Contains(t, stmt.SQL, "windowFunnel(@window)(created, value = @fs_0, value = @fs_1)")
	assert.Contains(t, stmt.SQL, "UNION ALL")
	assert.Contains(t, stmt.SQL, "ARRAY JOIN range(1, toUInt64(reached) + 1) AS lvl")
	assert.Equal(t, uint64(24*60*60), stmt.Params["window"])
	assert.Equal(t, "/", stmt.Params["fs_0"])
	assert.Equal(t, "signup", stmt.Params["fs_1"])

	short := analytics.BuildFunnel("p1", threeDays(t, "UTC"), []string{"/", "signup"}, 30*time.Minute)
	assert.Equal(t, uint64(1800), short.Params["window"])
}

func TestBackfill(t *testing.T) {
	testCases := []struct {
		name   string
		levels []events.FunnelLevel
		steps  int
		want   []uint64
	}{
		{"gap takes the next higher level", []events.FunnelLevel{{Level: 1, Count: 100}, {Level: 3, Count: 50}}, 3, []uint64{100, 50, 50}},
		{"dense", []events.FunnelLevel{{Level: 3, Count: 2}, {Level: 2, Count: 5}, {Level: 1, Count: 9}}, 3, []uint64{9, 5, 2}},
		{"top level only", []events.FunnelLevel{{Level: 2, Count: 4}}, 2, []uint64{4, 4}},
		{"nobody reached the end", []events.FunnelLevel{{Level: 1, Count: 4}}, 3, []uint64{4, 0, 0}},
		{"no rows", nil, 4, []uint64{0, 0, 0, 0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := analytics.Backfill(tc.levels, tc.steps)
			assert.Equal(t, tc.want, got)
			for i := 1; i < len(got); i++ {
				assert.LessOrEqual(t, got[i], got[i-1])
			}
		})
	}
}

func TestFormatFunnel(t *testing.T) {
	steps := analytics.FormatFunnel([]string{"/", "/pricing", "signup"}, []uint64{200, 50, 20})
	require.Len(t, steps, 3)

	assert.Equal(t, analytics.FunnelStep{Value: "/", Events: 200, EventsPerc: 100, EventsPercStep: 100}, steps[0])
	assert.Equal(t, analytics.FunnelStep{
		Value: "/pricing", Events: 50, EventsPerc: 25, EventsPercStep: 25, Dropoff: 150, DropoffPercStep: 75,
	}, steps[1])
	assert.Equal(t, analytics.FunnelStep{
		Value: "signup", Events: 20, EventsPerc: 10, EventsPercStep: 40, Dropoff: 30, DropoffPercStep: 60,
	}, steps[2])
}

func TestFormatFunnelRounds(t *testing.T) {
	steps := analytics.FormatFunnel([]string{"a", "b"}, []uint64{3, 1})
	assert.Equal(t, 33.33, steps[1].EventsPerc)
	assert.Equal(t, 66.67, steps[1].DropoffPercStep)
}

func TestFormatFunnelWithoutSessions(t *testing.T) {
	steps := analytics.FormatFunnel([]string{"a", "b", "c"}, analytics.Backfill(nil, 3))
	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Zero(t, s.Events)
		assert.Zero(t, s.EventsPerc)
		assert.Zero(t, s.EventsPercStep)
		assert.Zero(t, s.Dropoff)
		assert.Zero(t, s.DropoffPercStep)
	}
}
