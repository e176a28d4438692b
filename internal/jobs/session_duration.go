package jobs

import (
	"context"
	"log/slog"
	"time"

	"statwise/internal/visitors"
)

// IdleSessionSource lists and removes open session-duration entries.
type IdleSessionSource interface {
	IdleSessions(ctx context.Context, idle time.Duration) ([]visitors.IdleSession, error)
	Forget(ctx context.Context, s visitors.IdleSession) error
}

// DurationWriter stores the final duration of a session.
type DurationWriter interface {
	BackfillSessionDuration(ctx context.Context, pid, psid string, d time.Duration) error
}

// SessionDurationJob closes idle sessions: it writes lastSeen-start to the
// session's pageviews and drops the cache entry.
type SessionDurationJob struct {
	sessions IdleSessionSource
	writer   DurationWriter
	idle     time.Duration
	logger   *slog.Logger
}

func NewSessionDurationJob(sessions IdleSessionSource, writer DurationWriter, idle time.Duration, logger *slog.Logger) *SessionDurationJob {
	return &SessionDurationJob{
		sessions: sessions,
		writer:   writer,
		idle:     idle,
		logger:   logger,
	}
}

func (j *SessionDurationJob) Name() string {
	return "session_duration"
}

// Run fails only when the idle entries cannot be listed. A session whose
// update fails keeps its entry and is retried on the next run.
func (j *SessionDurationJob) Run(ctx context.Context) error {
	idle, err := j.sessions.IdleSessions(ctx, j.idle)
	if err != nil {
		return err
	}
	if len(idle) == 0 {
		j.logger.Debug("No idle sessions to close")
		return nil
	}

	closed, failed := 0, 0
	for _, s := range idle {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.writer.BackfillSessionDuration(ctx, s.PID, s.SessionID, s.Duration()); err != nil {
			j.logger.Warn("Failed to store session duration",
				slog.String("pid", s.PID), slog.String("session", s.SessionID), slog.Any("error", err))
			failed++
			continue
		}
		if err := j.sessions.Forget(ctx, s); err != nil {
			j.logger.Warn("Failed to remove closed session", slog.String("key", s.Key), slog.Any("error", err))
			failed++
			continue
		}
		closed++
	}

	j.logger.Info("Closed idle sessions", slog.Int("closed", closed), slog.Int("failed", failed))
	return nil
}
