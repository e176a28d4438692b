package timeframe

import (
	"fmt"
	"time"

	"statwise/internal/apperr"
)

// BucketSize is the granularity timestamps are truncated to for grouping.
type BucketSize string

const (
	BucketSizeMinute BucketSize = "minute"
	BucketSizeHour   BucketSize = "hour"
	BucketSizeDay    BucketSize = "day"
	BucketSizeMonth  BucketSize = "month"
	BucketSizeYear   BucketSize = "year"
)

var bucketOrder = map[BucketSize]int{
	BucketSizeMinute: 0,
	BucketSizeHour:   1,
	BucketSizeDay:    2,
	BucketSizeMonth:  3,
	BucketSizeYear:   4,
}

// ParseBucketSize rejects anything outside the bucket enum.
func ParseBucketSize(s string) (BucketSize, error) {
	b := BucketSize(s)
	if _, ok := bucketOrder[b]; !ok {
		return "", apperr.BadRequest("invalid bucket")
	}
	return b, nil
}

// Less orders buckets from finest to coarsest.
func (b BucketSize) Less(other BucketSize) bool {
	return bucketOrder[b] < bucketOrder[other]
}

func (b BucketSize) Valid() bool {
	_, ok := bucketOrder[b]
	return ok
}

func (b BucketSize) String() string {
	return string(b)
}

// Label layouts per bucket. Minute and hour share the full datetime form.
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DayLayout      = "2006-01-02"
	MonthLayout    = "2006-01"
	YearLayout     = "2006"
)

// Layout returns the label format for the bucket.
func (b BucketSize) Layout() string {
	switch b {
	case BucketSizeDay:
		return DayLayout
	case BucketSizeMonth:
		return MonthLayout
	case BucketSizeYear:
		return YearLayout
	default:
		return DateTimeLayout
	}
}

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// TruncateToBucketInTimezone truncates a time to the start of its bucket in the given timezone
func TruncateToBucketInTimezone(t time.Time, bucketSize BucketSize, loc *time.Location) time.Time {
	localTime := t.In(loc)
	year, month, day := localTime.Date()

	switch bucketSize {
	case BucketSizeYear:
		return time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	case BucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	case BucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	case BucketSizeHour:
		return time.Date(year, month, day, localTime.Hour(), 0, 0, 0, loc)
	case BucketSizeMinute:
		return time.Date(year, month, day, localTime.Hour(), localTime.Minute(), 0, 0, loc)
	default:
		return localTime
	}
}

// EndOfBucketInTimezone returns the last second of the bucket containing t.
func EndOfBucketInTimezone(t time.Time, bucketSize BucketSize, loc *time.Location) time.Time {
	start := TruncateToBucketInTimezone(t, bucketSize, loc)
	return AdvanceBucket(start, bucketSize).Add(-1 * time.Second)
}

// AdvanceBucket moves t forward by one bucket unit.
func AdvanceBucket(t time.Time, bucketSize BucketSize) time.Time {
	switch bucketSize {
	case BucketSizeYear:
		return t.AddDate(1, 0, 0)
	case BucketSizeMonth:
		return t.AddDate(0, 1, 0)
	case BucketSizeDay:
		return t.AddDate(0, 0, 1)
	case BucketSizeHour:
		return t.Add(time.Hour)
	default:
		return t.Add(time.Minute)
	}
}

// StartOfDay and EndOfDay work on the calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	return TruncateToBucketInTimezone(t, BucketSizeDay, loc)
}

func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return EndOfBucketInTimezone(t, BucketSizeDay, loc)
}

// BucketKey holds the grouping columns returned by a grouped query.
// Columns finer than the query bucket stay zero.
type BucketKey struct {
	Year   uint16
	Month  uint16
	Day    uint16
	Hour   uint16
	Minute uint16
}

// Label renders the key in the same layout the axis uses for bucketSize.
func (k BucketKey) Label(bucketSize BucketSize) string {
	switch bucketSize {
	case BucketSizeYear:
		return fmt.Sprintf("%04d", k.Year)
	case BucketSizeMonth:
		return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
	case BucketSizeDay:
		return fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day)
	case BucketSizeHour:
		return fmt.Sprintf("%04d-%02d-%02d %02d:00:00", k.Year, k.Month, k.Day, k.Hour)
	default:
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:00", k.Year, k.Month, k.Day, k.Hour, k.Minute)
	}
}
