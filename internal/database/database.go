package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v4"

	"statwise/internal/config"
)

// Manager owns the ClickHouse connection pool.
type Manager struct {
	conn   driver.Conn
	logger *slog.Logger
}

// Options builds the driver options from the application config.
func Options(cfg *config.Config) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: cfg.ClickHouseAddrs(),
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: cfg.AppName, Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:  cfg.DialTimeout(),
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
	}
}

// Connect opens the pool and pings the server until it answers or the
// configured retry window elapses.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	conn, err := clickhouse.Open(Options(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectRetry()

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout())
		defer cancel()
		if err := conn.Ping(pingCtx); err != nil {
			logger.Warn("ClickHouse not ready", slog.Any("addr", cfg.ClickHouseAddrs()), slog.Any("error", err))
			return err
		}
		return nil
	}

	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Info("Connected to ClickHouse", slog.Any("addr", cfg.ClickHouseAddrs()), slog.String("database", cfg.ClickHouseDatabase))
	return &Manager{conn: conn, logger: logger}, nil
}

func (m *Manager) Conn() driver.Conn {
	return m.conn
}

// Migrate creates the event tables when they do not exist yet.
func (m *Manager) Migrate(ctx context.Context) error {
	started := time.Now()
	for _, ddl := range Schema() {
		if err := m.conn.Exec(ctx, ddl.SQL); err != nil {
			return fmt.Errorf("failed to create table %s: %w", ddl.Table, err)
		}
	}
	m.logger.Info("Event tables ready", slog.Duration("took", time.Since(started)))
	return nil
}

func (m *Manager) Close() error {
	if m.conn == nil {
		return nil
	}
	m.logger.Info("ClickHouse connection closed")
	return m.conn.Close()
}
