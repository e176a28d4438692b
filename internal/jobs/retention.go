package jobs

import (
	"context"
	"log/slog"
	"time"

	"statwise/internal/timeframe"
)

type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) error
}

// RetentionJob removes events older than the retention period.
type RetentionJob struct {
	purger       Purger
	days         int
	timeProvider timeframe.TimeProvider
	logger       *slog.Logger
}

func NewRetentionJob(purger Purger, days int, logger *slog.Logger, tp ...timeframe.TimeProvider) *RetentionJob {
	var provider timeframe.TimeProvider = &timeframe.DefaultTimeProvider{}
	if len(tp) > 0 && tp[0] != nil {
		provider = tp[0]
	}
	return &RetentionJob{purger: purger, days: days, timeProvider: provider, logger: logger}
}

func (j *RetentionJob) Name() string {
	return "retention"
}

func (j *RetentionJob) Run(ctx context.Context) error {
	if j.days <= 0 {
		j.logger.Debug("Retention disabled, keeping all events")
		return nil
	}

	cutoff := timeframe.StartOfDay(j.timeProvider.Now(time.UTC), time.UTC).AddDate(0, 0, -j.days)
	j.logger.Info("Starting cleanup of old events",
		slog.Int("retention_days", j.days),
		slog.Time("cutoff_date", cutoff))

	if err := j.purger.PurgeBefore(ctx, cutoff); err != nil {
		return err
	}

	j.logger.Info("Cleaned up old events", slog.Int("retention_days", j.days))
	return nil
}
