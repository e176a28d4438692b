package analytics

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"statwise/internal/apperr"
	"statwise/internal/events"
	"statwise/internal/filters"
	"statwise/internal/pkg/async"
	"statwise/internal/timeframe"
)

// Presence counts live visitors. *visitors.Tracker implements it.
type Presence interface {
	Online(ctx context.Context, pid string) (int64, error)
}

type EngineOptions struct {
	FunnelWindow time.Duration
	Workers      int
	TimeProvider timeframe.TimeProvider
	// Presence is optional; without it Online reports an internal error.
	Presence Presence
}

// Engine answers analytics queries: it resolves the timeframe, compiles
// filters, runs the statements and aligns the rows. Validation always
// happens before the first store call.
type Engine struct {
	store        events.Store
	resolver     *timeframe.Resolver
	pool         *async.Pool
	logger       *slog.Logger
	funnelWindow time.Duration
	presence     Presence
}

func NewEngine(store events.Store, logger *slog.Logger, opts EngineOptions) *Engine {
	if opts.FunnelWindow <= 0 {
		opts.FunnelWindow = DefaultFunnelWindow
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Engine{
		store:        store,
		resolver:     timeframe.NewResolver(store, opts.TimeProvider),
		pool:         async.NewPool(opts.Workers),
		logger:       logger,
		funnelWindow: opts.FunnelWindow,
		presence:     opts.Presence,
	}
}

// ChartRequest carries the raw parameters of a chart query.
type ChartRequest struct {
	timeframe.Request
	Filters    string
	Cumulative bool
	// Measure applies to performance charts: average, median or p95.
	Measure string
}

type RangeInfo struct {
	From           string                 `json:"from"`
	To             string                 `json:"to"`
	Bucket         timeframe.BucketSize   `json:"timeBucket"`
	AllowedBuckets []timeframe.BucketSize `json:"allowedTimeBuckets"`
	Timezone       string                 `json:"timezone"`
}

func rangeInfo(r *timeframe.Range) RangeInfo {
	allowed, _ := timeframe.AllowedBuckets(r.Days())
	return RangeInfo{
		From:           r.FromUTCString(),
		To:             r.ToUTCString(),
		Bucket:         r.Bucket,
		AllowedBuckets: allowed,
		Timezone:       r.Timezone,
	}
}

type TrafficResult struct {
	Range          RangeInfo                     `json:"range"`
	AppliedFilters []filters.Clause              `json:"appliedFilters"`
	Chart          TrafficChart                  `json:"chart"`
	Meta           Optional[[]events.MetaCount] `json:"meta"`
}

type CustomEventsResult struct {
	Range          RangeInfo         `json:"range"`
	AppliedFilters []filters.Clause  `json:"appliedFilters"`
	Chart          CustomEventsChart `json:"chart"`
}

type PerformanceResult struct {
	Range          RangeInfo        `json:"range"`
	AppliedFilters []filters.Clause `json:"appliedFilters"`
	Measure        PerfMeasure      `json:"measure"`
	Chart          PerformanceChart `json:"chart"`
}

type CaptchaResult struct {
	Range          RangeInfo        `json:"range"`
	AppliedFilters []filters.Clause `json:"appliedFilters"`
	Chart          CaptchaChart     `json:"chart"`
}

// ParamValue is one facet entry. A nil Name is a stored NULL.
type ParamValue struct {
	Name  *string `json:"name"`
	Count uint64  `json:"count"`
}

type Params map[string][]ParamValue

// internal logs cause with the operation and project, and returns the opaque
// error callers see.
func (e *Engine) internal(op, pid string, cause error) error {
	if apperr.KindOf(cause) != apperr.KindInternal {
		return cause
	}
	var typed *apperr.Error
	if errors.As(cause, &typed) {
		e.logger.Error("Analytics query failed", slog.String("op", op), slog.String("pid", pid), slog.String("cause", typed.Message), slog.Any("error", typed.Err))
		return cause
	}
	e.logger.Error("Analytics query failed", slog.String("op", op), slog.String("pid", pid), slog.Any("error", cause))
	return apperr.Internalf(op, cause)
}

// prepare compiles filters and resolves the timeframe. No statement runs
// when either step fails, except the first-event lookup of "all".
func (e *Engine) prepare(ctx context.Context, req ChartRequest, dt filters.DataType) (*timeframe.Range, *filters.Compiled, error) {
	compiled, err := filters.Compile(req.Filters, dt, e.logger)
	if err != nil {
		return nil, nil, err
	}
	if compiled.CustomEventApplied && dt != filters.Traffic {
		return nil, nil, apperr.BadRequest("unsupported filter: " + filters.EventColumn)
	}

	rng, err := e.resolver.Resolve(ctx, req.Request)
	if err != nil {
		return nil, nil, e.internal("resolve", req.PID, err)
	}
	return rng, compiled, nil
}

func (e *Engine) Traffic(ctx context.Context, req ChartRequest) (*TrafficResult, error) {
	rng, compiled, err := e.prepare(ctx, req, filters.Traffic)
	if err != nil {
		return nil, err
	}
	chart, err := e.trafficChart(ctx, req, rng, compiled)
	if err != nil {
		return nil, err
	}
	meta, err := e.meta(ctx, req.PID, rng, compiled)
	if err != nil {
		return nil, err
	}
	return &TrafficResult{
		Range:          rangeInfo(rng),
		AppliedFilters: compiled.Applied,
		Chart:          chart,
		Meta:           meta,
	}, nil
}

func (e *Engine) trafficChart(ctx context.Context, req ChartRequest, rng *timeframe.Range, compiled *filters.Compiled) (TrafficChart, error) {
	stmt := BuildChart(ChartSpec{
		PID:        req.PID,
		Range:      rng,
		Filters:    compiled,
		Source:     events.SourceTraffic,
		Cumulative: req.Cumulative,
	})
	rows, err := e.store.QueryTraffic(ctx, stmt)
	if err != nil {
		return TrafficChart{}, e.internal(stmt.Name, req.PID, err)
	}
	return AlignTraffic(timeframe.BuildAxis(rng), rng.Bucket, rows, req.Cumulative), nil
}

// meta is the single place deciding whether a metadata breakdown exists: only
// when the request filters on a custom event name.
func (e *Engine) meta(ctx context.Context, pid string, rng *timeframe.Range, compiled *filters.Compiled) (Optional[[]events.MetaCount], error) {
	if !compiled.CustomEventApplied {
		return None[[]events.MetaCount](), nil
	}
	stmt := BuildMeta(pid, rng, compiled)
	rows, err := e.store.QueryMeta(ctx, stmt)
	if err != nil {
		return None[[]events.MetaCount](), e.internal(stmt.Name, pid, err)
	}
	if rows == nil {
		rows = []events.MetaCount{}
	}
	return Some(rows), nil
}

// CustomEventMeta returns the metadata breakdown when an event filter is set.
func (e *Engine) CustomEventMeta(ctx context.Context, req ChartRequest) (Optional[[]events.MetaCount], error) {
	rng, compiled, err := e.prepare(ctx, req, filters.Traffic)
	if err != nil {
		return None[[]events.MetaCount](), err
	}
	return e.meta(ctx, req.PID, rng, compiled)
}

func (e *Engine) CustomEvents(ctx context.Context, req ChartRequest) (*CustomEventsResult, error) {
	rng, compiled, err := e.prepare(ctx, req, filters.Traffic)
	if err != nil {
		return nil, err
	}

	stmt := BuildChart(ChartSpec{
		PID:        req.PID,
		Range:      rng,
		Filters:    compiled,
		Source:     events.SourceCustomEvents,
		Cumulative: req.Cumulative,
	})
	rows, err := e.store.QueryCustomEvents(ctx, stmt)
	if err != nil {
		return nil, e.internal(stmt.Name, req.PID, err)
	}

	return &CustomEventsResult{
		Range:          rangeInfo(rng),
		AppliedFilters: compiled.Applied,
		Chart:          AlignCustomEvents(timeframe.BuildAxis(rng), rng.Bucket, rows, req.Cumulative),
	}, nil
}

func (e *Engine) Performance(ctx context.Context, req ChartRequest) (*PerformanceResult, error) {
	measure, err := ParsePerfMeasure(req.Measure)
	if err != nil {
		return nil, err
	}
	rng, compiled, err := e.prepare(ctx, req, filters.Performance)
	if err != nil {
		return nil, err
	}

	stmt := BuildChart(ChartSpec{
		PID:     req.PID,
		Range:   rng,
		Filters: compiled,
		Source:  events.SourcePerformance,
		Measure: measure,
	})
	rows, err := e.store.QueryPerformance(ctx, stmt)
	if err != nil {
		return nil, e.internal(stmt.Name, req.PID, err)
	}

	return &PerformanceResult{
		Range:          rangeInfo(rng),
		AppliedFilters: compiled.Applied,
		Measure:        measure,
		Chart:          AlignPerformance(timeframe.BuildAxis(rng), rng.Bucket, rows),
	}, nil
}

func (e *Engine) Captcha(ctx context.Context, req ChartRequest) (*CaptchaResult, error) {
	rng, compiled, err := e.prepare(ctx, req, filters.Captcha)
	if err != nil {
		return nil, err
	}

	stmt := BuildChart(ChartSpec{
		PID:        req.PID,
		Range:      rng,
		Filters:    compiled,
		Source:     events.SourceCaptcha,
		Cumulative: req.Cumulative,
	})
	rows, err := e.store.QueryCaptcha(ctx, stmt)
	if err != nil {
		return nil, e.internal(stmt.Name, req.PID, err)
	}

	return &CaptchaResult{
		Range:          rangeInfo(rng),
		AppliedFilters: compiled.Applied,
		Chart:          AlignCaptcha(timeframe.BuildAxis(rng), rng.Bucket, rows, req.Cumulative),
	}, nil
}

func (e *Engine) params(ctx context.Context, pid string, rng *timeframe.Range, compiled *filters.Compiled, dt filters.DataType) (Params, error) {
	stmt := BuildParams(ParamsSpec{PID: pid, Range: rng, Filters: compiled, DataType: dt})
	rows, err := e.store.QueryParams(ctx, stmt)
	if err != nil {
		return nil, e.internal(stmt.Name, pid, err)
	}

	out := Params{}
	for _, col := range filters.AllowedColumns(dt) {
		out[col] = []ParamValue{}
	}
	for _, r := range rows {
		out[r.Column] = append(out[r.Column], ParamValue{Name: r.Value, Count: r.Count})
	}
	return out, nil
}

type DashboardResult struct {
	Range          RangeInfo                     `json:"range"`
	AppliedFilters []filters.Clause              `json:"appliedFilters"`
	Params         Params                        `json:"params"`
	Chart          TrafficChart                  `json:"chart"`
	Meta           Optional[[]events.MetaCount] `json:"meta"`
}

const (
	taskParams = "params"
	taskChart  = "chart"
	taskMeta   = "meta"
)

// Dashboard fetches facets, the traffic chart and the optional metadata
// breakdown concurrently. Every failure is logged; the first one in task
// order is returned.
func (e *Engine) Dashboard(ctx context.Context, req ChartRequest) (*DashboardResult, error) {
	rng, compiled, err := e.prepare(ctx, req, filters.Traffic)
	if err != nil {
		return nil, err
	}

	tasks := []async.Task{
		{Name: taskParams, Execute: func(ctx context.Context) (interface{}, error) {
			return e.params(ctx, req.PID, rng, compiled, filters.Traffic)
		}},
		{Name: taskChart, Execute: func(ctx context.Context) (interface{}, error) {
			return e.trafficChart(ctx, req, rng, compiled)
		}},
		{Name: taskMeta, Execute: func(ctx context.Context) (interface{}, error) {
			return e.meta(ctx, req.PID, rng, compiled)
		}},
	}

	results := e.pool.Execute(ctx, tasks)
	for _, failed := range results.Errors() {
		e.logger.Warn("Dashboard sub-query failed", slog.String("task", failed.Name), slog.String("pid", req.PID), slog.Any("error", failed.Err))
	}
	if err := results.FirstError(taskParams, taskChart, taskMeta); err != nil {
		var typed *apperr.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, e.internal("dashboard", req.PID, err)
	}

	return &DashboardResult{
		Range:          rangeInfo(rng),
		AppliedFilters: compiled.Applied,
		Params:         results[taskParams].Data.(Params),
		Chart:          results[taskChart].Data.(TrafficChart),
		Meta:           results[taskMeta].Data.(Optional[[]events.MetaCount]),
	}, nil
}

// Params returns the facet counts for a data type.
func (e *Engine) Params(ctx context.Context, req ChartRequest, dt filters.DataType) (Params, error) {
	rng, compiled, err := e.prepare(ctx, req, dt)
	if err != nil {
		return nil, err
	}
	return e.params(ctx, req.PID, rng, compiled, dt)
}

type FunnelRequest struct {
	timeframe.Request
	Pages string
}

// Funnel counts sessions through the ordered steps. The result always has
// one entry per step.
func (e *Engine) Funnel(ctx context.Context, req FunnelRequest) (*FunnelResult, error) {
	steps, err := ParsePages(req.Pages)
	if err != nil {
		return nil, err
	}
	rng, err := e.resolver.Resolve(ctx, req.Request)
	if err != nil {
		return nil, e.internal("resolve", req.PID, err)
	}

	stmt := BuildFunnel(req.PID, rng, steps, e.funnelWindow)
	levels, err := e.store.QueryFunnel(ctx, stmt)
	if err != nil {
		return nil, e.internal(stmt.Name, req.PID, err)
	}

	totalsStmt := BuildTotals(req.PID, rng, nil)
	totals, err := e.store.QueryTotals(ctx, totalsStmt)
	if err != nil {
		return nil, e.internal(totalsStmt.Name, req.PID, err)
	}

	return &FunnelResult{
		Funnel:         FormatFunnel(steps, Backfill(levels, len(steps))),
		TotalPageviews: totals.Visits,
	}, nil
}

func (e *Engine) UserFlow(ctx context.Context, req ChartRequest) (*UserFlow, error) {
	rng, compiled, err := e.prepare(ctx, req, filters.Traffic)
	if err != nil {
		return nil, err
	}
	if compiled.CustomEventApplied {
		return nil, apperr.BadRequest("unsupported filter: " + filters.EventColumn)
	}

	stmt := BuildFlows(req.PID, rng, compiled)
	edges, err := e.store.QueryFlows(ctx, stmt)
	if err != nil {
		return nil, e.internal(stmt.Name, req.PID, err)
	}
	flow := BuildUserFlow(edges)
	return &flow, nil
}

type ProjectSummary struct {
	Current       events.Totals `json:"current"`
	Previous      events.Totals `json:"previous"`
	VisitsChange  float64       `json:"visitsChange"`
	UniquesChange float64       `json:"uniquesChange"`
}

// SummaryResult holds one entry per project that succeeded and the failure
// of every other one.
type SummaryResult struct {
	Projects map[string]ProjectSummary `json:"projects"`
	Failed   map[string]error          `json:"-"`
}

// Summary compares each project's totals with the preceding period of the
// same length. One project failing does not abort the others.
func (e *Engine) Summary(ctx context.Context, pids []string, period, timezone string) (*SummaryResult, error) {
	if len(pids) == 0 {
		return nil, apperr.BadRequest("no projects requested")
	}

	// Validation errors do not depend on the project.
	common, err := e.resolver.Resolve(ctx, timeframe.Request{PID: pids[0], Period: period, Timezone: timezone})
	if err != nil && apperr.KindOf(err) != apperr.KindInternal {
		return nil, err
	}
	shared := period != timeframe.PeriodAll && err == nil

	tasks := make([]async.Task, len(pids))
	for i, pid := range pids {
		tasks[i] = async.Task{Name: pid, Execute: func(ctx context.Context) (interface{}, error) {
			rng := common
			if !shared {
				var err error
				rng, err = e.resolver.Resolve(ctx, timeframe.Request{PID: pid, Period: period, Timezone: timezone})
				if err != nil {
					return nil, err
				}
			}
			return e.projectSummary(ctx, pid, rng)
		}}
	}

	results := e.pool.Execute(ctx, tasks)
	out := &SummaryResult{Projects: map[string]ProjectSummary{}, Failed: map[string]error{}}
	for _, pid := range pids {
		res, ok := results[pid]
		switch {
		case !ok:
			out.Failed[pid] = apperr.Internalf("summary", context.Canceled)
		case res.Err != nil:
			out.Failed[pid] = e.internal("summary", pid, res.Err)
		default:
			out.Projects[pid] = res.Data.(ProjectSummary)
		}
	}
	return out, nil
}

func (e *Engine) projectSummary(ctx context.Context, pid string, rng *timeframe.Range) (ProjectSummary, error) {
	current, err := e.store.QueryTotals(ctx, BuildTotals(pid, rng, nil))
	if err != nil {
		return ProjectSummary{}, err
	}

	span := rng.GroupToUTC.Sub(rng.GroupFromUTC)
	prev := *rng
	prev.GroupToUTC = rng.GroupFromUTC.Add(-time.Second)
	prev.GroupFromUTC = prev.GroupToUTC.Add(-span)
	prev.GroupFrom = prev.GroupFromUTC.In(rng.Location)
	prev.GroupTo = prev.GroupToUTC.In(rng.Location)

	previous, err := e.store.QueryTotals(ctx, BuildTotals(pid, &prev, nil))
	if err != nil {
		return ProjectSummary{}, err
	}

	return ProjectSummary{
		Current:       current,
		Previous:      previous,
		VisitsChange:  change(current.Visits, previous.Visits),
		UniquesChange: change(current.Uniques, previous.Uniques),
	}, nil
}

func change(current, previous uint64) float64 {
	if previous == 0 {
		return 0
	}
	cur := decimal.NewFromInt(int64(current))
	prev := decimal.NewFromInt(int64(previous))
	v, _ := cur.Sub(prev).Div(prev).Mul(hundred).Round(2).Float64()
	return v
}

var allTables = []string{events.TableTraffic, events.TableCustomEvents, events.TablePerformance, events.TableCaptcha}

type PurgeRequest struct {
	timeframe.Request
	Filters string
}

// PurgeEvents deletes a project's events in a range. With filters only the
// tables carrying the filtered columns are touched; an event filter narrows
// the purge to custom events.
func (e *Engine) PurgeEvents(ctx context.Context, req PurgeRequest) error {
	rng, compiled, err := e.prepare(ctx, ChartRequest{Request: req.Request, Filters: req.Filters}, filters.Traffic)
	if err != nil {
		return err
	}

	tables := allTables
	switch {
	case compiled.CustomEventApplied:
		tables = []string{events.TableCustomEvents}
	case len(compiled.Applied) > 0:
		tables = []string{events.TableTraffic, events.TableCustomEvents}
	}

	for _, table := range tables {
		stmt := BuildPurge(table, req.PID, rng, compiled)
		if err := e.store.Exec(ctx, stmt); err != nil {
			return e.internal(stmt.Name, req.PID, err)
		}
	}
	e.logger.Info("Purged events", slog.String("pid", req.PID), slog.Any("tables", tables),
		slog.String("from", rng.FromUTCString()), slog.String("to", rng.ToUTCString()))
	return nil
}

// PurgeBefore removes events older than cutoff from every table.
func (e *Engine) PurgeBefore(ctx context.Context, cutoff time.Time) error {
	for _, table := range allTables {
		stmt := BuildRetentionPurge(table, cutoff)
		if err := e.store.Exec(ctx, stmt); err != nil {
			return e.internal(stmt.Name, "", err)
		}
	}
	return nil
}

// BackfillSessionDuration stores the final duration of a closed session on
// its pageviews.
func (e *Engine) BackfillSessionDuration(ctx context.Context, pid, psid string, d time.Duration) error {
	if pid == "" || psid == "" {
		return apperr.BadRequest("pid and psid are required")
	}
	seconds := d.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	if seconds > math.MaxUint32 {
		seconds = math.MaxUint32
	}

	stmt := BuildSessionDurationUpdate(pid, psid, uint32(seconds))
	if err := e.store.Exec(ctx, stmt); err != nil {
		return e.internal(stmt.Name, pid, err)
	}
	return nil
}

// FirstEventAt exposes the earliest stored event of a project.
func (e *Engine) FirstEventAt(ctx context.Context, pid string) (time.Time, bool, error) {
	t, ok, err := e.store.FirstEventAt(ctx, pid)
	if err != nil {
		return time.Time{}, false, e.internal("first_event", pid, err)
	}
	return t, ok, nil
}

var errNoPresence = errors.New("presence tracking not configured")

// Online returns the number of sessions of pid with a live heartbeat.
func (e *Engine) Online(ctx context.Context, pid string) (int64, error) {
	if pid == "" {
		return 0, apperr.BadRequest("missing pid")
	}
	if e.presence == nil {
		return 0, e.internal("online", pid, errNoPresence)
	}
	n, err := e.presence.Online(ctx, pid)
	if err != nil {
		return 0, e.internal("online", pid, err)
	}
	return n, nil
}
