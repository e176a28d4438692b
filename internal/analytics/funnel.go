package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"statwise/internal/apperr"
	"statwise/internal/events"
	"statwise/internal/query"
	"statwise/internal/timeframe"
)

const (
	MinFunnelSteps = 2
	MaxFunnelSteps = 10
)

// DefaultFunnelWindow is the ceiling between two consecutive steps of the
// same session.
const DefaultFunnelWindow = 24 * time.Hour

type FunnelStep struct {
	Value           string  `json:"value"`
	Events          uint64  `json:"events"`
	EventsPerc      float64 `json:"eventsPerc"`
	EventsPercStep  float64 `json:"eventsPercStep"`
	Dropoff         uint64  `json:"dropoff"`
	DropoffPercStep float64 `json:"dropoffPercStep"`
}

type FunnelResult struct {
	Funnel         []FunnelStep `json:"funnel"`
	TotalPageviews uint64       `json:"totalPageviews"`
}

// ParsePages decodes a JSON array of 2 to 10 step values.
func ParsePages(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.BadRequest("pages are required")
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, apperr.BadRequest("pages must be a JSON array")
	}
	if len(items) < MinFunnelSteps || len(items) > MaxFunnelSteps {
		return nil, apperr.Unprocessable(fmt.Sprintf("a funnel needs between %d and %d steps", MinFunnelSteps, MaxFunnelSteps))
	}

	pages := make([]string, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &pages[i]); err != nil {
			return nil, apperr.Unprocessable("funnel steps must be strings")
		}
	}
	return pages, nil
}

// BuildFunnel counts, for every level, the sessions that reached at least
// that many consecutive steps within window of each other. Pageviews and
// custom events are matched as one stream.
func BuildFunnel(pid string, r *timeframe.Range, steps []string, window time.Duration) query.Statement {
	if window <= 0 {
		window = DefaultFunnelWindow
	}
	f := query.NewFragment()
	where := " WHERE " + rangePredicate(pid, r, &f) + " AND psid != ''"

	conds := make([]string, len(steps))
	for i, step := range steps {
		conds[i] = "value = " + f.Bind(fmt.Sprintf("fs_%d", i), step)
	}

	f.Text = "SELECT toUInt8(lvl) AS level, toUInt64(count()) AS c FROM (" +
		"SELECT psid, windowFunnel(" + f.Bind("window", uint64(window.Seconds())) + ")(created, " + strings.Join(conds, ", ") + ") AS reached FROM (" +
		"SELECT psid, created, assumeNotNull(pg) AS value FROM " + events.TableTraffic + where + " AND pg IS NOT NULL" +
		" UNION ALL " +
		"SELECT psid, created, name AS value FROM " + events.TableCustomEvents + where +
		") GROUP BY psid" +
		") ARRAY JOIN range(1, toUInt64(reached) + 1) AS lvl WHERE reached > 0 GROUP BY lvl ORDER BY lvl DESC"
	return query.Build("funnel", nil, f)
}

// Backfill turns sparse level counts into one count per step. A session that
// reached level N also reached every lower level, so a missing level takes
// the count of the next higher one and the series never increases.
func Backfill(levels []events.FunnelLevel, steps int) []uint64 {
	raw := make(map[int]uint64, len(levels))
	for _, l := range levels {
		raw[int(l.Level)] += l.Count
	}

	filled := make([]uint64, steps)
	var next uint64
	for level := steps; level >= 1; level-- {
		c := raw[level]
		if c < next {
			c = next
		}
		filled[level-1] = c
		next = c
	}
	return filled
}

var hundred = decimal.NewFromInt(100)

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	v, _ := decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(2).Float64()
	return v
}

// FormatFunnel derives per-step percentages. Step percentages are relative
// to the previous step, eventsPerc to the first one.
func FormatFunnel(steps []string, counts []uint64) []FunnelStep {
	out := make([]FunnelStep, len(steps))
	for i, step := range steps {
		var c uint64
		if i < len(counts) {
			c = counts[i]
		}
		out[i] = FunnelStep{Value: step, Events: c}

		if i == 0 {
			if c > 0 {
				out[i].EventsPerc = 100
				out[i].EventsPercStep = 100
			}
			continue
		}

		prev := out[i-1].Events
		out[i].EventsPerc = percent(c, out[0].Events)
		out[i].EventsPercStep = percent(c, prev)
		if prev > c {
			out[i].Dropoff = prev - c
		}
		out[i].DropoffPercStep = percent(out[i].Dropoff, prev)
	}
	return out
}
