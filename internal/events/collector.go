package events

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"statwise/internal/apperr"
	"statwise/internal/pkg/geoip"
	"statwise/internal/pkg/referrers"
	"statwise/internal/timeframe"
	"statwise/internal/visitors"
)

// SessionTracker is the part of visitors.Tracker the collector needs.
type SessionTracker interface {
	IsUnique(ctx context.Context, sessionKey string) (bool, string, error)
	ProcessInteraction(ctx context.Context, sessionHash, pid string) error
	Heartbeat(ctx context.Context, pid, sessionHash string) error
}

// Locator resolves an IP address to a coarse location.
type Locator interface {
	Lookup(ip string) (geoip.Location, bool)
}

// Hit is an event that already passed project and origin checks.
type Hit struct {
	PID       string
	IPAddress string
	UserAgent string
	Created   time.Time
	// Name and Meta are only used for custom events.
	Name string
	Meta map[string]string
	Dimensions
}

// Collector turns hits into stored rows: it assigns the session id, the
// unique flag, geo fields and the derived referrer source.
type Collector struct {
	tracker      SessionTracker
	writer       Writer
	locator      Locator
	salt         string
	logger       *slog.Logger
	timeProvider timeframe.TimeProvider
}

// NewCollector builds a collector. locator may be nil.
func NewCollector(tracker SessionTracker, writer Writer, locator Locator, saltSecret string, logger *slog.Logger, timeProvider ...timeframe.TimeProvider) *Collector {
	c := &Collector{
		tracker: tracker,
		writer:  writer,
		locator: locator,
		salt:    saltSecret,
		logger:  logger,
	}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		c.timeProvider = timeProvider[0]
	} else {
		c.timeProvider = &timeframe.DefaultTimeProvider{}
	}
	return c
}

// CollectPageview records a pageview and returns the stored row.
func (c *Collector) CollectPageview(ctx context.Context, hit Hit) (*Pageview, error) {
	if hit.PID == "" {
		return nil, apperr.BadRequest("missing pid")
	}

	psid, unique, err := c.session(ctx, hit)
	if err != nil {
		return nil, err
	}

	c.prepare(&hit)
	pv := Pageview{
		PID:        hit.PID,
		PSID:       psid,
		Created:    hit.Created,
		Unique:     unique,
		Dimensions: hit.Dimensions,
	}

	if err := c.writer.InsertPageviews(ctx, []Pageview{pv}); err != nil {
		c.logger.Error("Failed to store pageview", slog.String("pid", hit.PID), slog.Any("error", err))
		return nil, apperr.Internalf("store pageview", err)
	}
	return &pv, nil
}

// CollectCustomEvent records a named event. The session is resolved the same
// way as for pageviews but uniqueness is not stored.
func (c *Collector) CollectCustomEvent(ctx context.Context, hit Hit) (*CustomEvent, error) {
	if hit.PID == "" {
		return nil, apperr.BadRequest("missing pid")
	}
	if hit.Name == "" {
		return nil, apperr.BadRequest("missing event name")
	}

	psid, _, err := c.session(ctx, hit)
	if err != nil {
		return nil, err
	}

	c.prepare(&hit)
	ev := CustomEvent{
		PID:        hit.PID,
		PSID:       psid,
		Created:    hit.Created,
		Name:       hit.Name,
		Meta:       hit.Meta,
		Dimensions: hit.Dimensions,
	}

	if err := c.writer.InsertCustomEvents(ctx, []CustomEvent{ev}); err != nil {
		c.logger.Error("Failed to store custom event", slog.String("pid", hit.PID), slog.String("event", hit.Name), slog.Any("error", err))
		return nil, apperr.Internalf("store custom event", err)
	}
	return &ev, nil
}

// CollectPerformance records page timings. No session state is touched.
func (c *Collector) CollectPerformance(ctx context.Context, ip string, timing PerformanceTiming) error {
	if timing.PID == "" {
		return apperr.BadRequest("missing pid")
	}
	if timing.Created.IsZero() {
		timing.Created = c.timeProvider.Now(time.UTC)
	}
	if loc, ok := c.lookup(ip); ok {
		timing.Country, timing.Region, timing.City = loc.Country, loc.Region, loc.City
	}

	if err := c.writer.InsertPerformance(ctx, []PerformanceTiming{timing}); err != nil {
		c.logger.Error("Failed to store performance timing", slog.String("pid", timing.PID), slog.Any("error", err))
		return apperr.Internalf("store performance", err)
	}
	return nil
}

// CollectCaptcha records a solved challenge.
func (c *Collector) CollectCaptcha(ctx context.Context, ip string, pass CaptchaPass) error {
	if pass.PID == "" {
		return apperr.BadRequest("missing pid")
	}
	if pass.Created.IsZero() {
		pass.Created = c.timeProvider.Now(time.UTC)
	}
	if loc, ok := c.lookup(ip); ok {
		pass.Country = loc.Country
	}

	if err := c.writer.InsertCaptcha(ctx, []CaptchaPass{pass}); err != nil {
		c.logger.Error("Failed to store captcha pass", slog.String("pid", pass.PID), slog.Any("error", err))
		return apperr.Internalf("store captcha", err)
	}
	return nil
}

// session resolves the session id of a hit and records the interaction.
// The session id doubles as the duration key so the backfill job can address
// stored rows by psid.
func (c *Collector) session(ctx context.Context, hit Hit) (string, bool, error) {
	now := c.timeProvider.Now(time.UTC)
	key := visitors.SessionKey(hit.IPAddress, hit.UserAgent, hit.PID, visitors.DailySalt(c.salt, now))

	unique, psid, err := c.tracker.IsUnique(ctx, key)
	if err != nil {
		c.logger.Error("Session lookup failed", slog.String("pid", hit.PID), slog.Any("error", err))
		return "", false, err
	}

	if err := c.tracker.ProcessInteraction(ctx, psid, hit.PID); err != nil {
		c.logger.Error("Session interaction failed", slog.String("pid", hit.PID), slog.Any("error", err))
		return "", false, err
	}

	// Heartbeat failures never drop the hit.
	if err := c.tracker.Heartbeat(ctx, hit.PID, psid); err != nil {
		c.logger.Warn("Session heartbeat failed", slog.String("pid", hit.PID), slog.Any("error", err))
	}
	return psid, unique, nil
}

func (c *Collector) prepare(hit *Hit) {
	if hit.Created.IsZero() {
		hit.Created = c.timeProvider.Now(time.UTC)
	}
	hit.Created = hit.Created.UTC()

	if hit.Host == "" && hit.Page != "" {
		if u, err := url.Parse(hit.Page); err == nil && u.Host != "" {
			hit.Host = u.Hostname()
			hit.Page = u.EscapedPath()
			if hit.Page == "" {
				hit.Page = "/"
			}
		}
	}

	if hit.Source == "" {
		if src, ok := referrers.Classify(hit.Referrer, hit.Host); ok {
			hit.Source = src.Name
			if hit.Medium == "" {
				hit.Medium = string(src.Channel)
			}
		}
	}

	if loc, ok := c.lookup(hit.IPAddress); ok {
		hit.Country, hit.Region, hit.City = loc.Country, loc.Region, loc.City
	}
}

func (c *Collector) lookup(ip string) (geoip.Location, bool) {
	if c.locator == nil || ip == "" {
		return geoip.Location{}, false
	}
	return c.locator.Lookup(ip)
}
