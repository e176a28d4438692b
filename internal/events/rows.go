package events

import "statwise/internal/timeframe"

// Result rows are decoded once at the store boundary. Key carries only the
// grouping columns the query selected.

type TrafficRow struct {
	Key             timeframe.BucketKey
	Visits          uint64
	Uniques         uint64
	SessionDuration float64
}

type CustomEventRow struct {
	Key   timeframe.BucketKey
	Event string
	Count uint64
}

type PerformanceRow struct {
	Key      timeframe.BucketKey
	DNS      float64
	TLS      float64
	Conn     float64
	Response float64
	Render   float64
	DomLoad  float64
	TTFB     float64
}

type CaptchaRow struct {
	Key   timeframe.BucketKey
	Count uint64
}

// ParamCount is one facet value for a dimension column. A nil Value is a
// stored NULL.
type ParamCount struct {
	Column string
	Value  *string
	Count  uint64
}

// FunnelLevel counts sessions that reached at least Level steps.
type FunnelLevel struct {
	Level uint8
	Count uint64
}

type FlowEdge struct {
	Source string
	Target string
	Value  uint64
}

// MetaCount is one custom-event metadata key/value occurrence count.
type MetaCount struct {
	Key   string
	Value string
	Count uint64
}

type Totals struct {
	Visits          uint64
	Uniques         uint64
	SessionDuration float64
}
