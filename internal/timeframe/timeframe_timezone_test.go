package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/timeframe"
)

func utcRange(from, to time.Time, b timeframe.BucketSize) *timeframe.Range {
	return &timeframe.Range{
		GroupFrom: from, GroupTo: to,
		GroupFromUTC: from.UTC(), GroupToUTC: to.UTC(),
		Bucket: b, Location: time.UTC, Timezone: "UTC", UTCEquivalent: true,
	}
}

func TestSafeTimezone(t *testing.T) {
	loc, name, ok := timeframe.SafeTimezone("Etc/GMT")
	assert.True(t, ok)
	assert.Equal(t, time.UTC, loc)
	assert.Equal(t, "Etc/GMT", name)

	loc, name, ok = timeframe.SafeTimezone("")
	assert.True(t, ok)
	assert.Equal(t, time.UTC, loc)
	assert.Equal(t, "UTC", name)

	loc, name, ok = timeframe.SafeTimezone("Mars/Olympus_Mons")
	assert.False(t, ok)
	assert.Equal(t, time.UTC, loc)
	assert.Equal(t, timeframe.FallbackTimezone, name)

	loc, name, ok = timeframe.SafeTimezone("America/New_York")
	assert.True(t, ok)
	assert.Equal(t, "America/New_York", loc.String())
	assert.Equal(t, "America/New_York", name)
	assert.False(t, timeframe.IsUTCEquivalent(name))
}

func TestBuildAxisUTCDays(t *testing.T) {
	rng := utcRange(
		time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 14, 30, 45, 0, time.UTC),
		timeframe.BucketSizeDay,
	)

	axis := timeframe.BuildAxis(rng)

	require.Equal(t, 7, axis.Len())
	assert.Equal(t, "2024-07-09", axis.XShifted[0])
	assert.Equal(t, "2024-07-15", axis.XShifted[6])
	assert.Equal(t, axis.XShifted, axis.X)

	idx, ok := axis.IndexOf("2024-07-12")
	assert.True(t, ok)
	assert.Equal(t, 3, idx)
	_, ok = axis.IndexOf("2024-07-16")
	assert.False(t, ok)
}

func TestBuildAxisShiftedHours(t *testing.T) {
	ny := mustLoadLocation("America/New_York")
	from := time.Date(2024, 7, 15, 0, 0, 0, 0, ny)
	to := time.Date(2024, 7, 15, 2, 59, 59, 0, ny)
	rng := &timeframe.Range{
		GroupFrom: from, GroupTo: to,
		GroupFromUTC: from.UTC(), GroupToUTC: to.UTC(),
		Bucket: timeframe.BucketSizeHour, Location: ny, Timezone: "America/New_York",
	}

	axis := timeframe.BuildAxis(rng)

	assert.Equal(t, []string{"2024-07-15 00:00:00", "2024-07-15 01:00:00", "2024-07-15 02:00:00"}, axis.XShifted)
	assert.Equal(t, []string{"2024-07-15 04:00:00", "2024-07-15 05:00:00", "2024-07-15 06:00:00"}, axis.X)
}

func TestBuildAxisProperties(t *testing.T) {
	berlin := mustLoadLocation("Europe/Berlin")

	testCases := []struct {
		name   string
		from   time.Time
		to     time.Time
		bucket timeframe.BucketSize
		loc    *time.Location
	}{
		{"minutes", time.Date(2024, 7, 15, 13, 30, 12, 0, time.UTC), time.Date(2024, 7, 15, 14, 30, 45, 0, time.UTC), timeframe.BucketSizeMinute, time.UTC},
		{"hours across DST", time.Date(2024, 3, 30, 0, 0, 0, 0, berlin), time.Date(2024, 3, 31, 23, 59, 59, 0, berlin), timeframe.BucketSizeHour, berlin},
		{"months", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC), timeframe.BucketSizeMonth, time.UTC},
		{"years", time.Date(2019, 6, 1, 0, 0, 0, 0, berlin), time.Date(2024, 6, 1, 0, 0, 0, 0, berlin), timeframe.BucketSizeYear, berlin},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rng := &timeframe.Range{
				GroupFrom: tc.from.In(tc.loc), GroupTo: tc.to.In(tc.loc),
				GroupFromUTC: tc.from.UTC(), GroupToUTC: tc.to.UTC(),
				Bucket: tc.bucket, Location: tc.loc, UTCEquivalent: tc.loc == time.UTC,
			}

			first := timeframe.BuildAxis(rng)
			second := timeframe.BuildAxis(rng)

			assert.Equal(t, len(first.X), len(first.XShifted))
			assert.Equal(t, first.X, second.X)
			assert.Equal(t, first.XShifted, second.XShifted)

			start := timeframe.TruncateToBucketInTimezone(tc.from, tc.bucket, tc.loc)
			assert.Equal(t, start.Format(tc.bucket.Layout()), first.XShifted[0])

			last, err := time.ParseInLocation(tc.bucket.Layout(), first.XShifted[first.Len()-1], tc.loc)
			require.NoError(t, err)
			assert.False(t, last.After(tc.to))
			assert.True(t, timeframe.AdvanceBucket(last, tc.bucket).After(tc.to))
		})
	}
}

func TestBuildAxisMonths(t *testing.T) {
	rng := utcRange(
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		timeframe.BucketSizeMonth,
	)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, timeframe.BuildAxis(rng).XShifted)
}

func TestBuildAxisFallBackHourRepeatsLabel(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	from := time.Date(2024, 11, 3, 0, 0, 0, 0, ny)
	to := time.Date(2024, 11, 3, 23, 59, 59, 0, ny)
	axis := timeframe.BuildAxis(&timeframe.Range{
		GroupFrom: from, GroupTo: to,
		GroupFromUTC: from.UTC(), GroupToUTC: to.UTC(),
		Bucket: timeframe.BucketSizeHour, Location: ny, Timezone: "America/New_York",
	})

	require.Equal(t, 25, axis.Len())
	require.Len(t, axis.X, axis.Len())

	assert.Equal(t, "2024-11-03 01:00:00", axis.XShifted[1])
	assert.Equal(t, "2024-11-03 01:00:00", axis.XShifted[2])
	assert.Equal(t, "2024-11-03 05:00:00", axis.X[1])
	assert.Equal(t, "2024-11-03 06:00:00", axis.X[2])

	i, ok := axis.IndexOf("2024-11-03 01:00:00")
	require.True(t, ok)
	assert.Equal(t, 1, i)
}
