package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statwise/internal/analytics"
	"statwise/internal/config"
	"statwise/internal/jobs"
	"statwise/internal/testsupport"
	"statwise/internal/visitors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STATWISE_ENV", config.Test)
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestScheduleJobs(t *testing.T) {
	c, _ := testsupport.SetupTestCache(t)
	logger := testsupport.GetLogger()
	tracker := visitors.NewTracker(c, logger, visitors.TrackerOptions{SessionTTL: time.Minute, DurationTTL: time.Hour})
	store := testsupport.NewFakeStore()
	engine := analytics.NewEngine(store, logger, analytics.EngineOptions{})

	t.Run("retention disabled", func(t *testing.T) {
		cfg := testConfig(t)
		s := jobs.NewScheduler(logger, nil)
		require.NoError(t, scheduleJobs(s, cfg, tracker, engine, logger))

		ran, err := s.Trigger("session_duration")
		require.NoError(t, err)
		assert.True(t, ran)

		_, err = s.Trigger("retention")
		assert.Error(t, err)
	})

	t.Run("retention enabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RetentionDays = 90
		s := jobs.NewScheduler(logger, nil)
		require.NoError(t, scheduleJobs(s, cfg, tracker, engine, logger))

		ran, err := s.Trigger("retention")
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Len(t, store.Execs(), 4)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SessionDurationSchedule = "every minute"
		err := scheduleJobs(jobs.NewScheduler(logger, nil), cfg, tracker, engine, logger)
		assert.Error(t, err)
	})
}
