// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"statwise/internal/config"
)

// New returns a text logger on stdout outside production and a JSON logger
// writing to stdout plus a rotated file in production.
func New(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: Level(cfg.LogLevel)}

	if !cfg.IsProduction() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	w := io.MultiWriter(os.Stdout, FileWriter(cfg))
	return slog.New(slog.NewJSONHandler(w, opts)).With(slog.String("app", cfg.AppName))
}

// FileWriter returns the rotating log file writer.
func FileWriter(cfg *config.Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogsDirectory, cfg.AppName+".log"),
		MaxSize:    cfg.LogsMaxSizeInMb,
		MaxBackups: cfg.LogsMaxBackups,
		MaxAge:     cfg.LogsMaxAgeInDays,
		Compress:   true,
	}
}

// Level maps a configured level to slog.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
