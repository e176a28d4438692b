package testsupport

import (
	"context"
	"sync"
	"time"

	"statwise/internal/events"
	"statwise/internal/query"
)

// FakeStore is an in-memory events.Store and events.Writer. Queries return
// the scripted rows; every statement is recorded for inspection.
type FakeStore struct {
	mu sync.Mutex

	Traffic      []events.TrafficRow
	CustomEvents []events.CustomEventRow
	Performance  []events.PerformanceRow
	Captcha      []events.CaptchaRow
	Params       []events.ParamCount
	Funnel       []events.FunnelLevel
	Flows        []events.FlowEdge
	Meta         []events.MetaCount
	Totals       events.Totals

	FirstEvent     time.Time
	HasFirstEvent  bool
	FirstEventErr  error
	FirstEventPIDs map[string]time.Time

	// Errors fail statements by name; Err fails every query.
	Errors map[string]error
	Err    error

	InsertErr    error
	Pageviews    []events.Pageview
	Events       []events.CustomEvent
	Timings      []events.PerformanceTiming
	CaptchaRows  []events.CaptchaPass
	statements   []query.Statement
	execStmts    []query.Statement
}

func NewFakeStore() *FakeStore {
	return &FakeStore{Errors: map[string]error{}}
}

// Statements returns the recorded read statements in issue order.
func (f *FakeStore) Statements() []query.Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]query.Statement(nil), f.statements...)
}

// Statement returns the last recorded read statement with the given name.
func (f *FakeStore) Statement(name string) (query.Statement, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.statements) - 1; i >= 0; i-- {
		if f.statements[i].Name == name {
			return f.statements[i], true
		}
	}
	return query.Statement{}, false
}

// Execs returns the recorded mutation statements.
func (f *FakeStore) Execs() []query.Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]query.Statement(nil), f.execStmts...)
}

func (f *FakeStore) record(stmt query.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, stmt)
	if err, ok := f.Errors[stmt.Name]; ok {
		return err
	}
	return f.Err
}

func (f *FakeStore) FirstEventAt(_ context.Context, pid string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FirstEventErr != nil {
		return time.Time{}, false, f.FirstEventErr
	}
	if t, ok := f.FirstEventPIDs[pid]; ok {
		return t, true, nil
	}
	return f.FirstEvent, f.HasFirstEvent, nil
}

func (f *FakeStore) QueryTraffic(_ context.Context, stmt query.Statement) ([]events.TrafficRow, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.Traffic, nil
}

func (f *FakeStore) QueryCustomEvents(_ context.Context, stmt query.Statement) ([]events.CustomEventRow, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.CustomEvents, nil
}

func (f *FakeStore) QueryPerformance(_ context.Context, stmt query.Statement) ([]events.PerformanceRow, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.Performance, nil
}

func (f *FakeStore) QueryCaptcha(_ context.Context, stmt query.Statement) ([]events.CaptchaRow, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.Captcha, nil
}

func (f *FakeStore) QueryParams(_ context.Context, stmt query.Statement) ([]events.ParamCount, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.Params, nil
}

func (f *FakeStore) QueryFunnel(_ context.Context, stmt query.Statement) ([]events.FunnelLevel, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.Funnel, nil
}

func (f *FakeStore) QueryFlows(_ context.Context, stmt query.Statement) ([]events.FlowEdge, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.Flows, nil
}

func (f *FakeStore) QueryMeta(_ context.Context, stmt query.Statement) ([]events.MetaCount, error) {
	if err := f.record(stmt); err != nil {
		return nil, err
	}
	return f.Meta, nil
}

func (f *FakeStore) QueryTotals(_ context.Context, stmt query.Statement) (events.Totals, error) {
	if err := f.record(stmt); err != nil {
		return events.Totals{}, err
	}
	return f.Totals, nil
}

func (f *FakeStore) Exec(_ context.Context, stmt query.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execStmts = append(f.execStmts, stmt)
	if err, ok := f.Errors[stmt.Name]; ok {
		return err
	}
	return f.Err
}

func (f *FakeStore) InsertPageviews(_ context.Context, rows []events.Pageview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	f.Pageviews = append(f.Pageviews, rows...)
	return nil
}

func (f *FakeStore) InsertCustomEvents(_ context.Context, rows []events.CustomEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	f.Events = append(f.Events, rows...)
	return nil
}

func (f *FakeStore) InsertPerformance(_ context.Context, rows []events.PerformanceTiming) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	f.Timings = append(f.Timings, rows...)
	return nil
}

func (f *FakeStore) InsertCaptcha(_ context.Context, rows []events.CaptchaPass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	f.CaptchaRows = append(f.CaptchaRows, rows...)
	return nil
}

var (
	_ events.Store  = (*FakeStore)(nil)
	_ events.Writer = (*FakeStore)(nil)
)
