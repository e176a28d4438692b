// Package metrics exposes Prometheus instruments for store and cache access.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec
	cacheOps      *prometheus.CounterVec
	jobRuns       *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer, prefix string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_store_query_duration_seconds",
				Help:    "Event store query duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"query"},
		),
		queryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_store_query_errors_total",
				Help: "Total number of failed event store queries",
			},
			[]string{"query"},
		),
		cacheOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_cache_operations_total",
				Help: "Total number of cache operations",
			},
			[]string{"op", "result"},
		),
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_job_runs_total",
				Help: "Total number of scheduled job runs",
			},
			[]string{"job", "result"},
		),
	}
}

// ObserveQuery records the duration and outcome of a store query.
func (m *Metrics) ObserveQuery(name string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if err != nil {
		m.queryErrors.WithLabelValues(name).Inc()
	}
}

// CacheOp counts a cache operation; result is hit, miss, ok or error.
func (m *Metrics) CacheOp(op, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}
