package visitors

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"statwise/internal/apperr"
	"statwise/internal/cache"
	"statwise/internal/timeframe"
)

const (
	durationPrefix  = "sd:"
	heartbeatPrefix = "hb:"
)

type TrackerOptions struct {
	SessionTTL   time.Duration
	DurationTTL  time.Duration
	HeartbeatTTL time.Duration
	TimeProvider timeframe.TimeProvider
	NewID        func() (string, error)
}

// Tracker decides session uniqueness and keeps session-duration state in the
// cache. Two concurrent first hits for the same key may each write a fresh
// id; the last write wins.
type Tracker struct {
	cache        cache.Cache
	logger       *slog.Logger
	sessionTTL   time.Duration
	durationTTL  time.Duration
	heartbeatTTL time.Duration
	timeProvider timeframe.TimeProvider
	newID        func() (string, error)
}

func NewTracker(c cache.Cache, logger *slog.Logger, opts TrackerOptions) *Tracker {
	t := &Tracker{
		cache:        c,
		logger:       logger,
		sessionTTL:   opts.SessionTTL,
		durationTTL:  opts.DurationTTL,
		heartbeatTTL: opts.HeartbeatTTL,
		timeProvider: opts.TimeProvider,
		newID:        opts.NewID,
	}
	if t.timeProvider == nil {
		t.timeProvider = &timeframe.DefaultTimeProvider{}
	}
	if t.newID == nil {
		t.newID = NewSessionID
	}
	if t.heartbeatTTL <= 0 {
		t.heartbeatTTL = time.Minute
	}
	return t
}

// IsUnique reports whether sessionKey was unknown and returns its session id.
// Every call re-arms the TTL.
func (t *Tracker) IsUnique(ctx context.Context, sessionKey string) (bool, string, error) {
	id, found, err := t.cache.Get(ctx, sessionKey)
	if err != nil {
		return false, "", apperr.Internalf("session lookup", err)
	}

	if !found {
		id, err = t.newID()
		if err != nil {
			return false, "", apperr.Internalf("session id", err)
		}
	}

	if err := t.cache.Set(ctx, sessionKey, id, t.sessionTTL); err != nil {
		return false, "", apperr.Internalf("session store", err)
	}
	return !found, id, nil
}

// DurationKey is the cache key of the open-session entry.
func DurationKey(sessionHash, pid string) string {
	return durationPrefix + sessionHash + ":" + pid
}

// ProcessInteraction records activity for the session, keeping the first
// seen timestamp and moving lastSeen to now.
func (t *Tracker) ProcessInteraction(ctx context.Context, sessionHash, pid string) error {
	key := DurationKey(sessionHash, pid)
	now := t.timeProvider.Now(time.UTC).UnixMilli()

	start := now
	raw, found, err := t.cache.Get(ctx, key)
	if err != nil {
		return apperr.Internalf("session duration lookup", err)
	}
	if found {
		s, _, err := parseDurationValue(raw)
		if err != nil {
			t.logger.Error("corrupt session duration entry", slog.String("key", key), slog.String("value", raw), slog.Any("error", err))
			return apperr.Internalf("session duration entry", err)
		}
		start = s
	}

	value := strconv.FormatInt(start, 10) + ":" + strconv.FormatInt(now, 10)
	if err := t.cache.Set(ctx, key, value, t.durationTTL); err != nil {
		return apperr.Internalf("session duration store", err)
	}
	return nil
}

// SessionDuration returns lastSeen - start for an open session.
func (t *Tracker) SessionDuration(ctx context.Context, sessionHash, pid string) (time.Duration, bool, error) {
	key := DurationKey(sessionHash, pid)
	raw, found, err := t.cache.Get(ctx, key)
	if err != nil {
		return 0, false, apperr.Internalf("session duration lookup", err)
	}
	if !found {
		return 0, false, nil
	}
	start, last, err := parseDurationValue(raw)
	if err != nil {
		return 0, false, apperr.Internalf("session duration entry", err)
	}
	return time.Duration(last-start) * time.Millisecond, true, nil
}

// IdleSession is an open-session entry whose last activity is older than the
// idle threshold.
type IdleSession struct {
	Key       string
	SessionID string
	PID       string
	Start     time.Time
	LastSeen  time.Time
}

func (s IdleSession) Duration() time.Duration {
	return s.LastSeen.Sub(s.Start)
}

// IdleSessions lists entries idle for at least idle. Corrupt entries are
// logged and removed.
func (t *Tracker) IdleSessions(ctx context.Context, idle time.Duration) ([]IdleSession, error) {
	keys, err := t.cache.Keys(ctx, durationPrefix+"*")
	if err != nil {
		return nil, apperr.Internalf("list sessions", err)
	}

	now := t.timeProvider.Now(time.UTC)
	var out []IdleSession
	for _, key := range keys {
		sessionID, pid, ok := parseDurationKey(key)
		raw, found, err := t.cache.Get(ctx, key)
		if err != nil {
			return nil, apperr.Internalf("session duration lookup", err)
		}
		if !found {
			continue
		}
		start, last, perr := parseDurationValue(raw)
		if !ok || perr != nil {
			t.logger.Warn("dropping corrupt session duration entry", slog.String("key", key), slog.String("value", raw))
			if err := t.cache.Del(ctx, key); err != nil {
				return nil, apperr.Internalf("session duration delete", err)
			}
			continue
		}
		lastSeen := time.UnixMilli(last).UTC()
		if now.Sub(lastSeen) < idle {
			continue
		}
		out = append(out, IdleSession{
			Key:       key,
			SessionID: sessionID,
			PID:       pid,
			Start:     time.UnixMilli(start).UTC(),
			LastSeen:  lastSeen,
		})
	}
	return out, nil
}

// Forget removes a closed session entry.
func (t *Tracker) Forget(ctx context.Context, s IdleSession) error {
	if err := t.cache.Del(ctx, s.Key); err != nil {
		return apperr.Internalf("session duration delete", err)
	}
	return nil
}

// Heartbeat marks the session as currently online.
func (t *Tracker) Heartbeat(ctx context.Context, pid, sessionHash string) error {
	if err := t.cache.Set(ctx, heartbeatPrefix+pid+":"+sessionHash, "1", t.heartbeatTTL); err != nil {
		return apperr.Internalf("heartbeat store", err)
	}
	return nil
}

// Online counts sessions with a live heartbeat.
func (t *Tracker) Online(ctx context.Context, pid string) (int64, error) {
	n, err := t.cache.CountKeys(ctx, heartbeatPrefix+pid+":*")
	if err != nil {
		return 0, apperr.Internalf("online count", err)
	}
	return n, nil
}

func parseDurationValue(raw string) (start, last int64, err error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed session duration %q", raw)
	}
	if start, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("malformed session start %q: %w", raw, err)
	}
	if last, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("malformed session last seen %q: %w", raw, err)
	}
	return start, last, nil
}

func parseDurationKey(key string) (sessionHash, pid string, ok bool) {
	rest := strings.TrimPrefix(key, durationPrefix)
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
