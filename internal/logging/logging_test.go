package logging_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"statwise/internal/config"
	"statwise/internal/logging"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.Level(config.LogLevelDebug))
	assert.Equal(t, slog.LevelWarn, logging.Level(config.LogLevelWarn))
	assert.Equal(t, slog.LevelError, logging.Level(config.LogLevelError))
	assert.Equal(t, slog.LevelInfo, logging.Level("other"))
}

func TestNewRespectsLevel(t *testing.T) {
	cfg := &config.Config{AppName: "statwise", Environment: config.Development, LogLevel: config.LogLevelWarn}
	logger := logging.New(cfg)

	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestFileWriterUsesRotationSettings(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		AppName:          "statwise",
		LogsDirectory:    dir,
		LogsMaxSizeInMb:  5,
		LogsMaxBackups:   3,
		LogsMaxAgeInDays: 7,
	}

	w := logging.FileWriter(cfg)
	assert.Equal(t, filepath.Join(dir, "statwise.log"), w.Filename)
	assert.Equal(t, 5, w.MaxSize)
	assert.Equal(t, 3, w.MaxBackups)
	assert.Equal(t, 7, w.MaxAge)
}
