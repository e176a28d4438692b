package events

import (
	"context"

	"statwise/internal/query"
	"statwise/internal/timeframe"
)

// Store is the read side of the event store plus its narrow mutations.
type Store interface {
	timeframe.FirstEventFinder

	QueryTraffic(ctx context.Context, stmt query.Statement) ([]TrafficRow, error)
	QueryCustomEvents(ctx context.Context, stmt query.Statement) ([]CustomEventRow, error)
	QueryPerformance(ctx context.Context, stmt query.Statement) ([]PerformanceRow, error)
	QueryCaptcha(ctx context.Context, stmt query.Statement) ([]CaptchaRow, error)
	QueryParams(ctx context.Context, stmt query.Statement) ([]ParamCount, error)
	QueryFunnel(ctx context.Context, stmt query.Statement) ([]FunnelLevel, error)
	QueryFlows(ctx context.Context, stmt query.Statement) ([]FlowEdge, error)
	QueryMeta(ctx context.Context, stmt query.Statement) ([]MetaCount, error)
	QueryTotals(ctx context.Context, stmt query.Statement) (Totals, error)

	// Exec runs an update or delete statement and waits for it.
	Exec(ctx context.Context, stmt query.Statement) error
}

// Writer appends events.
type Writer interface {
	InsertPageviews(ctx context.Context, rows []Pageview) error
	InsertCustomEvents(ctx context.Context, rows []CustomEvent) error
	InsertPerformance(ctx context.Context, rows []PerformanceTiming) error
	InsertCaptcha(ctx context.Context, rows []CaptchaPass) error
}
