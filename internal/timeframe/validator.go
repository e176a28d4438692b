package timeframe

import (
	"math"
	"time"

	"statwise/internal/apperr"
)

type bucketRule struct {
	maxDays int
	allowed []BucketSize
}

// bucketRules is ordered by maxDays. A span matches the first row whose
// maxDays it does not exceed.
var bucketRules = []bucketRule{
	{maxDays: 1, allowed: []BucketSize{BucketSizeMinute, BucketSizeHour}},
	{maxDays: 7, allowed: []BucketSize{BucketSizeHour, BucketSizeDay, BucketSizeMonth}},
	{maxDays: 28, allowed: []BucketSize{BucketSizeDay, BucketSizeMonth}},
	{maxDays: 366, allowed: []BucketSize{BucketSizeMonth}},
	{maxDays: 732, allowed: []BucketSize{BucketSizeMonth}},
	{maxDays: 1464, allowed: []BucketSize{BucketSizeMonth, BucketSizeYear}},
	{maxDays: 99999, allowed: []BucketSize{BucketSizeYear}},
}

// SpanDays is the number of whole days between from and to.
func SpanDays(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / 24))
}

// AllowedBuckets returns the permitted buckets for a span of days, finest first.
func AllowedBuckets(days int) ([]BucketSize, bool) {
	for _, rule := range bucketRules {
		if days <= rule.maxDays {
			out := make([]BucketSize, len(rule.allowed))
			copy(out, rule.allowed)
			return out, true
		}
	}
	return nil, false
}

// ValidateBucket checks that bucket may be used to group [from, to].
func ValidateBucket(bucket BucketSize, from, to time.Time) error {
	if !bucket.Valid() {
		return apperr.BadRequest("invalid bucket")
	}
	allowed, ok := AllowedBuckets(SpanDays(from, to))
	if !ok {
		return apperr.PreconditionFailed("range too large")
	}
	for _, b := range allowed {
		if b == bucket {
			return nil
		}
	}
	return apperr.PreconditionFailed("bucket " + bucket.String() + " is incompatible with the selected range")
}

// DefaultBucket picks the finest bucket permitted for [from, to].
func DefaultBucket(from, to time.Time) (BucketSize, error) {
	allowed, ok := AllowedBuckets(SpanDays(from, to))
	if !ok {
		return "", apperr.PreconditionFailed("range too large")
	}
	return allowed[0], nil
}
