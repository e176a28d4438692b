package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"statwise/internal/events"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dimensionValues(d events.Dimensions) []any {
	return []any{
		nullable(d.Page), nullable(d.Previous), nullable(d.Host), nullable(d.Referrer),
		nullable(d.Source), nullable(d.Medium), nullable(d.Campaign), nullable(d.Term), nullable(d.Content),
		nullable(d.Device), nullable(d.Browser), nullable(d.BrowserV), nullable(d.OS), nullable(d.OSV),
		nullable(d.Country), nullable(d.Region), nullable(d.City), nullable(d.Locale),
	}
}

// MetaColumns splits a metadata map into the parallel key/value arrays of
// the nested meta column, ordered by key.
func MetaColumns(meta map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = meta[k]
	}
	return keys, values
}

func insertSQL(table string, columns ...string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ")"
}

func (s *Store) send(ctx context.Context, name, sql string, n int, appendRow func(i int, add func(...any) error) error) (err error) {
	if n == 0 {
		return nil
	}
	started := time.Now()
	defer func() {
		s.metrics.ObserveQuery(name, started, err)
		if err != nil {
			s.logger.Error("Event store insert failed", slog.String("query", name), slog.Int("rows", n), slog.Any("error", err))
		}
	}()

	batch, err := s.conn.PrepareBatch(ctx, sql)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := appendRow(i, batch.Append); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *Store) InsertPageviews(ctx context.Context, rows []events.Pageview) error {
	columns := append([]string{"pid", "psid"}, dimensionColumns...)
	columns = append(columns, "unique", "sdur", "created")

	return s.send(ctx, "insert_traffic", insertSQL(events.TableTraffic, columns...), len(rows), func(i int, add func(...any) error) error {
		r := rows[i]
		var unique uint8
		if r.Unique {
			unique = 1
		}
		values := append([]any{r.PID, r.PSID}, dimensionValues(r.Dimensions)...)
		return add(append(values, unique, r.SessionDuration, r.Created.UTC())...)
	})
}

func (s *Store) InsertCustomEvents(ctx context.Context, rows []events.CustomEvent) error {
	columns := append([]string{"pid", "psid", "name"}, dimensionColumns...)
	columns = append(columns, "meta.key", "meta.value", "created")

	return s.send(ctx, "insert_custom_events", insertSQL(events.TableCustomEvents, columns...), len(rows), func(i int, add func(...any) error) error {
		r := rows[i]
		keys, values := MetaColumns(r.Meta)
		row := append([]any{r.PID, r.PSID, r.Name}, dimensionValues(r.Dimensions)...)
		return add(append(row, keys, values, r.Created.UTC())...)
	})
}

func (s *Store) InsertPerformance(ctx context.Context, rows []events.PerformanceTiming) error {
	sql := insertSQL(events.TablePerformance,
		"pid", "pg", "dv", "br", "cc", "rg", "ct",
		"dns", "tls", "conn", "response", "render", "domLoad", "ttfb", "created")

	return s.send(ctx, "insert_performance", sql, len(rows), func(i int, add func(...any) error) error {
		r := rows[i]
		return add(
			r.PID, nullable(r.Page), nullable(r.Device), nullable(r.Browser),
			nullable(r.Country), nullable(r.Region), nullable(r.City),
			float32(r.DNS), float32(r.TLS), float32(r.Conn), float32(r.Response),
			float32(r.Render), float32(r.DomLoad), float32(r.TTFB),
			r.Created.UTC(),
		)
	})
}

func (s *Store) InsertCaptcha(ctx context.Context, rows []events.CaptchaPass) error {
	sql := insertSQL(events.TableCaptcha, "pid", "cc", "br", "os", "dv", "created")

	return s.send(ctx, "insert_captcha", sql, len(rows), func(i int, add func(...any) error) error {
		r := rows[i]
		return add(r.PID, nullable(r.Country), nullable(r.Browser), nullable(r.OS), nullable(r.Device), r.Created.UTC())
	})
}
