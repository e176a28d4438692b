package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"statwise/internal/timeframe"
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func TestTruncateToBucketInTimezone(t *testing.T) {
	berlin := mustLoadLocation("Europe/Berlin")
	// 2024-07-15 23:30:45 UTC is already the 16th in Berlin
	ts := time.Date(2024, 7, 15, 23, 30, 45, 0, time.UTC)

	testCases := []struct {
		name   string
		bucket timeframe.BucketSize
		loc    *time.Location
		want   time.Time
	}{
		{"minute utc", timeframe.BucketSizeMinute, time.UTC, time.Date(2024, 7, 15, 23, 30, 0, 0, time.UTC)},
		{"hour utc", timeframe.BucketSizeHour, time.UTC, time.Date(2024, 7, 15, 23, 0, 0, 0, time.UTC)},
		{"day utc", timeframe.BucketSizeDay, time.UTC, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)},
		{"day berlin", timeframe.BucketSizeDay, berlin, time.Date(2024, 7, 16, 0, 0, 0, 0, berlin)},
		{"month berlin", timeframe.BucketSizeMonth, berlin, time.Date(2024, 7, 1, 0, 0, 0, 0, berlin)},
		{"year utc", timeframe.BucketSizeYear, time.UTC, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := timeframe.TruncateToBucketInTimezone(ts, tc.bucket, tc.loc)
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
		})
	}
}

func TestEndOfBucketInTimezone(t *testing.T) {
	ts := time.Date(2024, 2, 10, 8, 15, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 2, 10, 8, 15, 59, 0, time.UTC), timeframe.EndOfBucketInTimezone(ts, timeframe.BucketSizeMinute, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 10, 8, 59, 59, 0, time.UTC), timeframe.EndOfBucketInTimezone(ts, timeframe.BucketSizeHour, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 10, 23, 59, 59, 0, time.UTC), timeframe.EndOfBucketInTimezone(ts, timeframe.BucketSizeDay, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), timeframe.EndOfBucketInTimezone(ts, timeframe.BucketSizeMonth, time.UTC))
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), timeframe.EndOfBucketInTimezone(ts, timeframe.BucketSizeYear, time.UTC))
}

func TestBucketKeyLabelMatchesAxisLayout(t *testing.T) {
	key := timeframe.BucketKey{Year: 2024, Month: 7, Day: 5, Hour: 9, Minute: 7}
	ts := time.Date(2024, 7, 5, 9, 7, 0, 0, time.UTC)

	for _, b := range []timeframe.BucketSize{"minute", "hour", "day", "month", "year"} {
		want := timeframe.TruncateToBucketInTimezone(ts, b, time.UTC).Format(b.Layout())
		assert.Equal(t, want, key.Label(b), "bucket %s", b)
	}
}

func TestBucketOrdering(t *testing.T) {
	assert.True(t, timeframe.BucketSizeMinute.Less(timeframe.BucketSizeHour))
	assert.True(t, timeframe.BucketSizeMonth.Less(timeframe.BucketSizeYear))
	assert.False(t, timeframe.BucketSizeDay.Less(timeframe.BucketSizeHour))
}
