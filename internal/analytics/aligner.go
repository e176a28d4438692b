package analytics

import (
	"github.com/shopspring/decimal"

	"statwise/internal/events"
	"statwise/internal/timeframe"
)

type TrafficChart struct {
	X               []string  `json:"x"`
	XShifted        []string  `json:"xShifted"`
	Visits          []uint64  `json:"visits"`
	Uniques         []uint64  `json:"uniques"`
	SessionDuration []float64 `json:"sdur"`
}

type CustomEventsChart struct {
	X        []string            `json:"x"`
	XShifted []string            `json:"xShifted"`
	Events   map[string][]uint64 `json:"events"`
}

type CaptchaChart struct {
	X        []string `json:"x"`
	XShifted []string `json:"xShifted"`
	Count    []uint64 `json:"count"`
}

// PerformanceChart timings are in seconds.
type PerformanceChart struct {
	X        []string  `json:"x"`
	XShifted []string  `json:"xShifted"`
	DNS      []float64 `json:"dns"`
	TLS      []float64 `json:"tls"`
	Conn     []float64 `json:"conn"`
	Response []float64 `json:"response"`
	Render   []float64 `json:"render"`
	DomLoad  []float64 `json:"domLoad"`
	TTFB     []float64 `json:"ttfb"`
}

// DateString is the axis label of a grouped row.
func DateString(key timeframe.BucketKey, bucket timeframe.BucketSize) string {
	return key.Label(bucket)
}

func position(axis *timeframe.Axis, key timeframe.BucketKey, bucket timeframe.BucketSize) (int, bool) {
	return axis.IndexOf(DateString(key, bucket))
}

// carryForward fills the gaps of a running total with the previous value.
func carryForward(values []uint64, present []bool) {
	var last uint64
	for i := range values {
		if present[i] {
			last = values[i]
			continue
		}
		values[i] = last
	}
}

func roundSeconds(ms float64) float64 {
	v, _ := decimal.NewFromFloat(ms).Div(decimal.NewFromInt(1000)).Round(2).Float64()
	return v
}

func round2(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

// AlignTraffic places rows on the axis. Rows outside the axis are ignored.
func AlignTraffic(axis *timeframe.Axis, bucket timeframe.BucketSize, rows []events.TrafficRow, cumulative bool) TrafficChart {
	n := axis.Len()
	chart := TrafficChart{
		X:               axis.X,
		XShifted:        axis.XShifted,
		Visits:          make([]uint64, n),
		Uniques:         make([]uint64, n),
		SessionDuration: make([]float64, n),
	}
	present := make([]bool, n)

	for _, r := range rows {
		i, ok := position(axis, r.Key, bucket)
		if !ok {
			continue
		}
		chart.Visits[i] = r.Visits
		chart.Uniques[i] = r.Uniques
		chart.SessionDuration[i] = round2(r.SessionDuration)
		present[i] = true
	}

	if cumulative {
		carryForward(chart.Visits, present)
		carryForward(chart.Uniques, present)
	}
	return chart
}

// AlignCustomEvents allocates one series per event name seen in rows.
func AlignCustomEvents(axis *timeframe.Axis, bucket timeframe.BucketSize, rows []events.CustomEventRow, cumulative bool) CustomEventsChart {
	n := axis.Len()
	chart := CustomEventsChart{
		X:        axis.X,
		XShifted: axis.XShifted,
		Events:   map[string][]uint64{},
	}
	present := map[string][]bool{}

	for _, r := range rows {
		i, ok := position(axis, r.Key, bucket)
		if !ok {
			continue
		}
		series, seen := chart.Events[r.Event]
		if !seen {
			series = make([]uint64, n)
			chart.Events[r.Event] = series
			present[r.Event] = make([]bool, n)
		}
		series[i] = r.Count
		present[r.Event][i] = true
	}

	if cumulative {
		for name, series := range chart.Events {
			carryForward(series, present[name])
		}
	}
	return chart
}

func AlignCaptcha(axis *timeframe.Axis, bucket timeframe.BucketSize, rows []events.CaptchaRow, cumulative bool) CaptchaChart {
	n := axis.Len()
	chart := CaptchaChart{X: axis.X, XShifted: axis.XShifted, Count: make([]uint64, n)}
	present := make([]bool, n)

	for _, r := range rows {
		if i, ok := position(axis, r.Key, bucket); ok {
			chart.Count[i] = r.Count
			present[i] = true
		}
	}
	if cumulative {
		carryForward(chart.Count, present)
	}
	return chart
}

// AlignPerformance converts millisecond timings to seconds rounded to two
// decimals.
func AlignPerformance(axis *timeframe.Axis, bucket timeframe.BucketSize, rows []events.PerformanceRow) PerformanceChart {
	n := axis.Len()
	chart := PerformanceChart{
		X:        axis.X,
		XShifted: axis.XShifted,
		DNS:      make([]float64, n),
		TLS:      make([]float64, n),
		Conn:     make([]float64, n),
		Response: make([]float64, n),
		Render:   make([]float64, n),
		DomLoad:  make([]float64, n),
		TTFB:     make([]float64, n),
	}

	for _, r := range rows {
		i, ok := position(axis, r.Key, bucket)
		if !ok {
			continue
		}
		chart.DNS[i] = roundSeconds(r.DNS)
		chart.TLS[i] = roundSeconds(r.TLS)
		chart.Conn[i] = roundSeconds(r.Conn)
		chart.Response[i] = roundSeconds(r.Response)
		chart.Render[i] = roundSeconds(r.Render)
		chart.DomLoad[i] = roundSeconds(r.DomLoad)
		chart.TTFB[i] = roundSeconds(r.TTFB)
	}
	return chart
}
