package timeframe

import (
	"context"
	"errors"
	"time"

	"statwise/internal/apperr"
)

// Period keywords accepted by the resolver.
const (
	PeriodLastHour   = "1h"
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLastDay    = "1d"
	PeriodLast7Days  = "7d"
	PeriodLast4Weeks = "4w"
	Period3Months    = "3M"
	Period12Months   = "12M"
	Period24Months   = "24M"
	PeriodAll        = "all"
)

// lookback is how far a rolling period reaches back from now. Single-unit
// periods go back a full unit; multi-unit periods count the current unit as
// the first one and go back one unit less.
type lookback struct {
	hours  int
	days   int
	months int
}

var rollingPeriods = map[string]lookback{
	PeriodLastHour:   {hours: 1},
	PeriodLastDay:    {days: 1},
	PeriodLast7Days:  {days: 6},
	PeriodLast4Weeks: {days: 27},
	Period3Months:    {months: 2},
	Period12Months:   {months: 11},
	Period24Months:   {months: 23},
}

var errNoFinder = errors.New("no first event finder configured")

var dateLayouts = []string{DayLayout, DateTimeLayout, time.RFC3339}

// FirstEventFinder discovers the earliest event stored for a project.
type FirstEventFinder interface {
	FirstEventAt(ctx context.Context, pid string) (time.Time, bool, error)
}

// Request carries the raw timeframe parameters of a query.
type Request struct {
	PID      string
	From     string
	To       string
	Period   string
	Bucket   string
	Timezone string
}

// Range is a resolved interval. GroupFrom/GroupTo are in Location,
// GroupFromUTC/GroupToUTC are the same instants in UTC.
type Range struct {
	GroupFrom     time.Time
	GroupTo       time.Time
	GroupFromUTC  time.Time
	GroupToUTC    time.Time
	Bucket        BucketSize
	Location      *time.Location
	Timezone      string
	UTCEquivalent bool
}

func (r *Range) Days() int {
	return SpanDays(r.GroupFrom, r.GroupTo)
}

func (r *Range) FromUTCString() string {
	return r.GroupFromUTC.Format(DateTimeLayout)
}

func (r *Range) ToUTCString() string {
	return r.GroupToUTC.Format(DateTimeLayout)
}

type Resolver struct {
	timeProvider TimeProvider
	finder       FirstEventFinder
}

func NewResolver(finder FirstEventFinder, timeProvider ...TimeProvider) *Resolver {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Resolver{timeProvider: provider, finder: finder}
}

// Resolve validates the request and returns the absolute interval it names.
// Every validation failure is returned before any store access.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Range, error) {
	var bucket *BucketSize
	if req.Bucket != "" {
		b, err := ParseBucketSize(req.Bucket)
		if err != nil {
			return nil, err
		}
		bucket = &b
	}

	hasDates := req.From != "" || req.To != ""
	hasPeriod := req.Period != ""
	switch {
	case hasDates && hasPeriod:
		return nil, apperr.BadRequest("supply either from/to or period, not both")
	case !hasDates && !hasPeriod:
		return nil, apperr.BadRequest("missing timeframe")
	}

	loc, tz, _ := SafeTimezone(req.Timezone)
	utc := IsUTCEquivalent(tz)

	if hasDates {
		if req.From == "" || req.To == "" {
			return nil, apperr.BadRequest("both from and to are required")
		}
		from, err := parseDate(req.From, loc)
		if err != nil {
			return nil, apperr.BadRequest("invalid from date")
		}
		to, err := parseDate(req.To, loc)
		if err != nil {
			return nil, apperr.BadRequest("invalid to date")
		}
		if from.After(to) {
			return nil, apperr.BadRequest("from must not be after to")
		}
		return explicitRange(from, to, bucket, loc, tz, utc)
	}

	now := r.timeProvider.Now(loc)

	switch req.Period {
	case PeriodToday:
		return calendarDay(now, bucket, loc, tz, utc)
	case PeriodYesterday:
		return calendarDay(now.AddDate(0, 0, -1), bucket, loc, tz, utc)
	case PeriodAll:
		return r.allTime(ctx, req.PID, now, bucket, loc, tz, utc)
	}

	lb, ok := rollingPeriods[req.Period]
	if !ok {
		return nil, apperr.BadRequest("invalid period")
	}

	from := now.Add(-time.Duration(lb.hours) * time.Hour).AddDate(0, -lb.months, -lb.days)
	to := now.Truncate(time.Second)

	b, err := chooseBucket(bucket, from, to)
	if err != nil {
		return nil, err
	}
	return newRange(TruncateToBucketInTimezone(from, b, loc), to, b, loc, tz, utc), nil
}

func (r *Resolver) allTime(ctx context.Context, pid string, now time.Time, bucket *BucketSize, loc *time.Location, tz string, utc bool) (*Range, error) {
	if r.finder == nil {
		return nil, apperr.Internalf("resolve all time", errNoFinder)
	}

	first, found, err := r.finder.FirstEventAt(ctx, pid)
	if err != nil {
		return nil, apperr.Internalf("find first event", err)
	}

	if !found {
		month := BucketSizeMonth
		return explicitRange(now.AddDate(0, -1, 0), now, &month, loc, tz, utc)
	}

	from := StartOfDay(first, loc)
	if from.After(now) {
		from = StartOfDay(now, loc)
	}

	allowed, ok := AllowedBuckets(SpanDays(from, now))
	if !ok {
		return nil, apperr.PreconditionFailed("range too large")
	}
	chosen := allowed[0]
	if bucket != nil {
		for _, b := range allowed {
			if b == *bucket {
				chosen = b
				break
			}
		}
	}
	return explicitRange(from, now, &chosen, loc, tz, utc)
}

func explicitRange(from, to time.Time, bucket *BucketSize, loc *time.Location, tz string, utc bool) (*Range, error) {
	b, err := chooseBucket(bucket, from, to)
	if err != nil {
		return nil, err
	}
	if from.Equal(to) {
		return newRange(StartOfDay(from, loc), EndOfDay(from, loc), b, loc, tz, utc), nil
	}
	return newRange(
		TruncateToBucketInTimezone(from, b, loc),
		EndOfBucketInTimezone(to, b, loc),
		b, loc, tz, utc,
	), nil
}

func calendarDay(day time.Time, bucket *BucketSize, loc *time.Location, tz string, utc bool) (*Range, error) {
	from := StartOfDay(day, loc)
	to := EndOfDay(day, loc)
	b, err := chooseBucket(bucket, from, to)
	if err != nil {
		return nil, err
	}
	return newRange(from, to, b, loc, tz, utc), nil
}

func chooseBucket(bucket *BucketSize, from, to time.Time) (BucketSize, error) {
	if bucket == nil {
		return DefaultBucket(from, to)
	}
	if err := ValidateBucket(*bucket, from, to); err != nil {
		return "", err
	}
	return *bucket, nil
}

func newRange(from, to time.Time, b BucketSize, loc *time.Location, tz string, utc bool) *Range {
	return &Range{
		GroupFrom:     from.In(loc),
		GroupTo:       to.In(loc),
		GroupFromUTC:  from.UTC(),
		GroupToUTC:    to.UTC(),
		Bucket:        b,
		Location:      loc,
		Timezone:      tz,
		UTCEquivalent: utc,
	}
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
