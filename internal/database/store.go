package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"statwise/internal/events"
	"statwise/internal/metrics"
	"statwise/internal/query"
	"statwise/internal/timeframe"
)

// Store implements events.Store and events.Writer on ClickHouse.
type Store struct {
	conn    driver.Conn
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewStore(conn driver.Conn, logger *slog.Logger, m *metrics.Metrics) *Store {
	return &Store{conn: conn, logger: logger, metrics: m}
}

// NamedArgs converts bound parameters into driver named values, sorted by
// name.
func NamedArgs(params query.Params) []any {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = clickhouse.Named(name, params[name])
	}
	return args
}

// KeyTargets returns scan destinations for the grouping columns, in order,
// all pointing into key.
func KeyTargets(key *timeframe.BucketKey, groups []string) ([]any, error) {
	targets := make([]any, len(groups))
	for i, g := range groups {
		switch g {
		case "year":
			targets[i] = &key.Year
		case "month":
			targets[i] = &key.Month
		case "day":
			targets[i] = &key.Day
		case "hour":
			targets[i] = &key.Hour
		case "minute":
			targets[i] = &key.Minute
		default:
			return nil, fmt.Errorf("unknown group column %q", g)
		}
	}
	return targets, nil
}

func (s *Store) query(ctx context.Context, stmt query.Statement, scan func(driver.Rows) error) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveQuery(stmt.Name, started, err)
		if err != nil {
			s.logger.Error("Event store query failed", slog.String("query", stmt.Name), slog.Any("error", err))
		}
	}()

	rows, err := s.conn.Query(ctx, stmt.SQL, NamedArgs(stmt.Params)...)
	if err != nil {
		return fmt.Errorf("query %s: %w", stmt.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %s: %w", stmt.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows %s: %w", stmt.Name, err)
	}
	return nil
}

func (s *Store) FirstEventAt(ctx context.Context, pid string) (time.Time, bool, error) {
	stmt := query.Statement{
		Name:   "first_event",
		SQL:    "SELECT created FROM " + events.TableTraffic + " WHERE pid = @pid ORDER BY created ASC LIMIT 1",
		Params: query.Params{"pid": pid},
	}

	var (
		first time.Time
		found bool
	)
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		found = true
		return rows.Scan(&first)
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return first.UTC(), found, nil
}

func (s *Store) QueryTraffic(ctx context.Context, stmt query.Statement) ([]events.TrafficRow, error) {
	var out []events.TrafficRow
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.TrafficRow
		dest, err := KeyTargets(&r.Key, stmt.Groups)
		if err != nil {
			return err
		}
		if err := rows.Scan(append(dest, &r.Visits, &r.Uniques, &r.SessionDuration)...); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryCustomEvents(ctx context.Context, stmt query.Statement) ([]events.CustomEventRow, error) {
	var out []events.CustomEventRow
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.CustomEventRow
		dest, err := KeyTargets(&r.Key, stmt.Groups)
		if err != nil {
			return err
		}
		if err := rows.Scan(append(dest, &r.Event, &r.Count)...); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryPerformance(ctx context.Context, stmt query.Statement) ([]events.PerformanceRow, error) {
	var out []events.PerformanceRow
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.PerformanceRow
		dest, err := KeyTargets(&r.Key, stmt.Groups)
		if err != nil {
			return err
		}
		dest = append(dest, &r.DNS, &r.TLS, &r.Conn, &r.Response, &r.Render, &r.DomLoad, &r.TTFB)
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryCaptcha(ctx context.Context, stmt query.Statement) ([]events.CaptchaRow, error) {
	var out []events.CaptchaRow
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.CaptchaRow
		dest, err := KeyTargets(&r.Key, stmt.Groups)
		if err != nil {
			return err
		}
		if err := rows.Scan(append(dest, &r.Count)...); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryParams(ctx context.Context, stmt query.Statement) ([]events.ParamCount, error) {
	var out []events.ParamCount
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.ParamCount
		if err := rows.Scan(&r.Column, &r.Value, &r.Count); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryFunnel(ctx context.Context, stmt query.Statement) ([]events.FunnelLevel, error) {
	var out []events.FunnelLevel
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.FunnelLevel
		if err := rows.Scan(&r.Level, &r.Count); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryFlows(ctx context.Context, stmt query.Statement) ([]events.FlowEdge, error) {
	var out []events.FlowEdge
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.FlowEdge
		if err := rows.Scan(&r.Source, &r.Target, &r.Value); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryMeta(ctx context.Context, stmt query.Statement) ([]events.MetaCount, error) {
	var out []events.MetaCount
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		var r events.MetaCount
		if err := rows.Scan(&r.Key, &r.Value, &r.Count); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *Store) QueryTotals(ctx context.Context, stmt query.Statement) (events.Totals, error) {
	var t events.Totals
	err := s.query(ctx, stmt, func(rows driver.Rows) error {
		return rows.Scan(&t.Visits, &t.Uniques, &t.SessionDuration)
	})
	return t, err
}

// MutationSettings make ALTER mutations return only after every replica
// applied them.
func MutationSettings() clickhouse.Settings {
	return clickhouse.Settings{"mutations_sync": 2}
}

// Exec runs a mutation and waits until every replica applied it.
func (s *Store) Exec(ctx context.Context, stmt query.Statement) (err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveQuery(stmt.Name, started, err) }()

	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(MutationSettings()))
	if err = s.conn.Exec(ctx, stmt.SQL, NamedArgs(stmt.Params)...); err != nil {
		s.logger.Error("Event store mutation failed", slog.String("query", stmt.Name), slog.Any("error", err))
		return fmt.Errorf("exec %s: %w", stmt.Name, err)
	}
	return nil
}

var (
	_ events.Store  = (*Store)(nil)
	_ events.Writer = (*Store)(nil)
)
