// Package seeder generates realistic sample traffic for a project.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"statwise/internal/events"
)

// Sink receives generated hits. *events.Collector implements it.
type Sink interface {
	CollectPageview(ctx context.Context, hit events.Hit) (*events.Pageview, error)
	CollectCustomEvent(ctx context.Context, hit events.Hit) (*events.CustomEvent, error)
	CollectPerformance(ctx context.Context, ip string, timing events.PerformanceTiming) error
}

// Stats counts what a run wrote.
type Stats struct {
	Sessions     int
	Pageviews    int
	CustomEvents int
	Timings      int
}

// Seeder replays user journeys through a Sink. Hits are spread over the
// thirty days before now.
type Seeder struct {
	sink       Sink
	logger     *slog.Logger
	eventCount int
	rng        *rand.Rand
	now        func() time.Time
}

func NewSeeder(sink Sink, logger *slog.Logger, eventCount int, seed uint64) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		sink:       sink,
		logger:     logger,
		eventCount: eventCount,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:        time.Now,
	}
}

// WithClock replaces the reference time.
func (s *Seeder) WithClock(now func() time.Time) *Seeder {
	s.now = now
	return s
}

var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/products", "/products/widget-a", "/products/gadget-b", "/pricing"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/", "/blog", "/blog/article-1", "/blog/article-2"},
	{"/", "/signup"},
	{"/", "/features", "/pricing", "/docs", "/signup"},
	{"/products", "/products/widget-a", "/pricing", "/signup"},
	{"/", "/about", "/features", "/pricing", "/docs/getting-started", "/signup"},
	{"/login", "/dashboard", "/settings"},
	{"/blog/article-1", "/about", "/pricing", "/signup"},
}

var goalEvents = []struct {
	name string
	meta map[string]string
}{
	{"newsletter_signup", map[string]string{"source": "footer"}},
	{"purchase", map[string]string{"plan": "premium", "currency": "USD"}},
	{"demo_requested", map[string]string{"plan": "enterprise"}},
	{"account_created", map[string]string{"plan": "free", "source": "homepage"}},
	{"download_started", map[string]string{"filename": "whitepaper.pdf"}},
	{"free_trial_started", map[string]string{"plan": "pro", "duration": "14_days"}},
}

var referrerURLs = []string{
	"", // direct
	"https://google.com/",
	"https://www.bing.com/search",
	"https://duckduckgo.com/",
	"https://facebook.com/",
	"https://twitter.com/",
	"https://news.ycombinator.com/item",
	"https://github.com/",
	"https://some-other-website.com/blog/post",
}

type client struct {
	userAgent string
	device    string
	browser   string
	browserV  string
	os        string
	osV       string
}

var clients = []client{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/126.0", "desktop", "Chrome", "126", "Windows", "10"},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Version/17.5 Safari/605.1.15", "desktop", "Safari", "17", "macOS", "10.15"},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) Mobile/15E148", "mobile", "Mobile Safari", "17", "iOS", "17.5"},
	{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Chrome/126.0 Mobile", "mobile", "Chrome Mobile", "126", "Android", "14"},
	{"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Firefox/127.0", "desktop", "Firefox", "127", "Linux", ""},
	{"Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) Mobile/15E148", "tablet", "Mobile Safari", "17", "iPadOS", "17.5"},
}

var campaigns = []struct{ source, medium, campaign string }{
	{"newsletter", "email", "spring_sale"},
	{"linkedin", "social", "product_launch"},
	{"google", "cpc", "q4_promo"},
}

// maxFailedSessions bounds consecutive journeys that stored nothing.
const maxFailedSessions = 10

var errSinkUnavailable = errors.New("seeder: sink rejected every pageview")

var locales = []string{"en-US", "en-GB", "de-DE", "fr-FR", "es-ES"}

func (s *Seeder) pick(n int) int {
	return s.rng.IntN(n)
}

func (s *Seeder) ipPool(count int) []string {
	seen := make(map[string]bool, count)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", s.pick(223)+1, s.pick(256), s.pick(256), s.pick(254)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// Seed writes journeys for pid on host until eventCount pageviews exist or
// ctx is cancelled. Individual collect failures are logged and skipped.
func (s *Seeder) Seed(ctx context.Context, pid, host string) (Stats, error) {
	start := time.Now()
	s.logger.Info("Seeding project...", slog.String("pid", pid), slog.String("host", host), slog.Int("eventCount", s.eventCount))

	ips := s.ipPool(100)
	now := s.now().UTC()
	var stats Stats
	failed := 0

	for stats.Pageviews < s.eventCount {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Sessions++

		journey := journeyTemplates[s.pick(len(journeyTemplates))]
		ip := ips[s.pick(len(ips))]
		cl := clients[s.pick(len(clients))]
		referrer := referrerURLs[s.pick(len(referrerURLs))]
		locale := locales[s.pick(len(locales))]
		at := now.Add(-time.Duration(s.pick(30*24*60*60)) * time.Second)

		var campaign *struct{ source, medium, campaign string }
		if s.pick(10) < 2 {
			campaign = &campaigns[s.pick(len(campaigns))]
		}

		stored := stats.Pageviews
		previous := ""
		for i, page := range journey {
			if stats.Pageviews >= s.eventCount {
				break
			}
			hit := events.Hit{
				PID:       pid,
				IPAddress: ip,
				UserAgent: cl.userAgent,
				Created:   at,
				Dimensions: events.Dimensions{
					Page:     fmt.Sprintf("https://%s%s", host, page),
					Previous: previous,
					Device:   cl.device,
					Browser:  cl.browser,
					BrowserV: cl.browserV,
					OS:       cl.os,
					OSV:      cl.osV,
					Locale:   locale,
				},
			}
			if i == 0 {
				hit.Referrer = referrer
				if campaign != nil {
					hit.Source, hit.Medium, hit.Campaign = campaign.source, campaign.medium, campaign.campaign
				}
			}

			if _, err := s.sink.CollectPageview(ctx, hit); err != nil {
				s.logger.Error("Failed to collect pageview during seeding", slog.Any("error", err))
			} else {
				stats.Pageviews++
			}

			if s.pick(4) == 0 {
				s.timing(ctx, pid, ip, page, cl, at, &stats)
			}

			previous = page
			at = at.Add(time.Duration(s.pick(110)+10) * time.Second)
		}

		if stats.Pageviews == stored {
			failed++
			if failed >= maxFailedSessions {
				return stats, errSinkUnavailable
			}
			continue
		}
		failed = 0

		if s.pick(5) == 0 {
			goal := goalEvents[s.pick(len(goalEvents))]
			hit := events.Hit{
				PID:       pid,
				IPAddress: ip,
				UserAgent: cl.userAgent,
				Created:   at,
				Name:      goal.name,
				Meta:      goal.meta,
				Dimensions: events.Dimensions{
					Page:    fmt.Sprintf("https://%s%s", host, previous),
					Device:  cl.device,
					Browser: cl.browser,
					OS:      cl.os,
					Locale:  locale,
				},
			}
			if _, err := s.sink.CollectCustomEvent(ctx, hit); err != nil {
				s.logger.Error("Failed to collect custom event during seeding", slog.Any("error", err))
			} else {
				stats.CustomEvents++
			}
		}
	}

	s.logger.Info("Seeding completed",
		slog.String("pid", pid),
		slog.Int("sessions", stats.Sessions),
		slog.Int("pageviews", stats.Pageviews),
		slog.Int("customEvents", stats.CustomEvents),
		slog.Duration("elapsed", time.Since(start)))
	return stats, nil
}

func (s *Seeder) timing(ctx context.Context, pid, ip, page string, cl client, at time.Time, stats *Stats) {
	t := events.PerformanceTiming{
		PID:      pid,
		Created:  at,
		Page:     page,
		Device:   cl.device,
		Browser:  cl.browser,
		DNS:      float64(s.pick(40)),
		TLS:      float64(s.pick(80)),
		Conn:     float64(s.pick(60)),
		Response: float64(50 + s.pick(400)),
		Render:   float64(200 + s.pick(1500)),
		DomLoad:  float64(300 + s.pick(2000)),
		TTFB:     float64(80 + s.pick(600)),
	}
	if err := s.sink.CollectPerformance(ctx, ip, t); err != nil {
		s.logger.Error("Failed to collect timing during seeding", slog.Any("error", err))
		return
	}
	stats.Timings++
}
