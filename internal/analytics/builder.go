package analytics

import (
	"fmt"
	"strings"
	"time"

	"statwise/internal/apperr"
	"statwise/internal/events"
	"statwise/internal/filters"
	"statwise/internal/query"
	"statwise/internal/timeframe"
)

// Grouping columns, coarsest first.
var groupOrder = []string{"year", "month", "day", "hour", "minute"}

var groupFuncs = map[string]string{
	"year":   "toYear",
	"month":  "toMonth",
	"day":    "toDayOfMonth",
	"hour":   "toHour",
	"minute": "toMinute",
}

// GroupColumns returns the grouping columns for a bucket size.
func GroupColumns(b timeframe.BucketSize) []string {
	switch b {
	case timeframe.BucketSizeYear:
		return groupOrder[:1]
	case timeframe.BucketSizeMonth:
		return groupOrder[:2]
	case timeframe.BucketSizeDay:
		return groupOrder[:3]
	case timeframe.BucketSizeHour:
		return groupOrder[:4]
	default:
		return groupOrder[:5]
	}
}

// PerfMeasure selects how performance timings are aggregated per bucket.
type PerfMeasure string

const (
	MeasureAverage PerfMeasure = "average"
	MeasureMedian  PerfMeasure = "median"
	MeasureP95     PerfMeasure = "p95"
)

// ParsePerfMeasure maps an empty value to the average.
func ParsePerfMeasure(s string) (PerfMeasure, error) {
	switch PerfMeasure(s) {
	case "":
		return MeasureAverage, nil
	case MeasureAverage, MeasureMedian, MeasureP95:
		return PerfMeasure(s), nil
	}
	return "", apperr.BadRequest("invalid measure")
}

func (m PerfMeasure) expr(column string) string {
	switch m {
	case MeasureMedian:
		return "toFloat64(quantileExact(0.5)(" + column + "))"
	case MeasureP95:
		return "toFloat64(quantile(0.95)(" + column + "))"
	default:
		return "toFloat64(avg(" + column + "))"
	}
}

var perfColumns = []string{"dns", "tls", "conn", "response", "render", "domLoad", "ttfb"}

// ChartSpec describes one time-bucketed chart query.
type ChartSpec struct {
	PID        string
	Range      *timeframe.Range
	Filters    *filters.Compiled
	Source     events.Source
	Cumulative bool
	Measure    PerfMeasure
}

type measure struct {
	expr  string
	alias string
	// running is set for counts; averages are never summed.
	running bool
}

func timestampExpr(r *timeframe.Range, f *query.Fragment) string {
	if r.UTCEquivalent {
		return "created"
	}
	return "toTimeZone(created, " + f.Bind("tz", r.Timezone) + ")"
}

func groupSelect(groups []string, r *timeframe.Range, f *query.Fragment) string {
	ts := timestampExpr(r, f)
	cols := make([]string, len(groups))
	for i, g := range groups {
		cols[i] = fmt.Sprintf("toUInt16(%s(%s)) AS %s", groupFuncs[g], ts, g)
	}
	return strings.Join(cols, ", ")
}

// rangePredicate binds pid and the UTC bounds.
func rangePredicate(pid string, r *timeframe.Range, f *query.Fragment) string {
	return "pid = " + f.Bind("pid", pid) +
		" AND created BETWEEN " + f.Bind("groupFrom", r.GroupFromUTC) +
		" AND " + f.Bind("groupTo", r.GroupToUTC)
}

func whereClause(pid string, r *timeframe.Range, c *filters.Compiled, f *query.Fragment, extra ...string) string {
	var sb strings.Builder
	sb.WriteString(" WHERE ")
	sb.WriteString(rangePredicate(pid, r, f))
	for _, e := range extra {
		sb.WriteString(" AND ")
		sb.WriteString(e)
	}
	if c != nil && !c.Fragment.Empty() {
		f.Append("", c.Fragment.Params)
		sb.WriteString(c.Fragment.Text)
	}
	return sb.String()
}

func compiledOrEmpty(c *filters.Compiled) *filters.Compiled {
	if c == nil {
		return filters.Empty()
	}
	return c
}

// BuildChart composes the grouped aggregation for spec.Source.
func BuildChart(spec ChartSpec) query.Statement {
	groups := GroupColumns(spec.Range.Bucket)
	c := compiledOrEmpty(spec.Filters)
	f := query.NewFragment()

	source := spec.Source
	if source == events.SourceTraffic && c.CustomEventApplied {
		source = events.SourceCustomEvents
	}

	var measures []measure
	var partition []string
	name := "chart_" + string(spec.Source)

	switch {
	case spec.Source == events.SourceTraffic && source == events.SourceCustomEvents:
		measures = []measure{
			{"toUInt64(count())", "visits", true},
			{"toUInt64(uniqExact(psid))", "uniques", true},
			{"toFloat64(0)", "avg_sdur", false},
		}
	case source == events.SourceTraffic:
		measures = []measure{
			{"toUInt64(count())", "visits", true},
			{"toUInt64(countIf(unique = 1))", "uniques", true},
			{"toFloat64(ifNotFinite(avgIf(sdur, sdur > 0), 0))", "avg_sdur", false},
		}
	case source == events.SourceCustomEvents:
		measures = []measure{
			{"name", "event", false},
			{"toUInt64(count())", "c", true},
		}
		partition = []string{"event"}
	case source == events.SourcePerformance:
		for _, col := range perfColumns {
			measures = append(measures, measure{spec.Measure.expr(col), "m_" + col, false})
		}
	case source == events.SourceCaptcha:
		measures = []measure{{"toUInt64(count())", "c", true}}
	}

	selects := []string{groupSelect(groups, spec.Range, &f)}
	groupBy := append([]string(nil), groups...)
	for _, m := range measures {
		selects = append(selects, m.expr+" AS "+m.alias)
	}
	groupBy = append(groupBy, partition...)

	base := "SELECT " + strings.Join(selects, ", ") +
		" FROM " + source.Table() +
		whereClause(spec.PID, spec.Range, c, &f) +
		" GROUP BY " + strings.Join(groupBy, ", ") +
		" ORDER BY " + strings.Join(groupBy, ", ")

	sql := base
	if spec.Cumulative && hasRunning(measures) {
		sql = cumulative(base, groups, partition, measures)
		name += "_cumulative"
	}

	f.Text = sql
	return query.Build(name, groups, f)
}

func hasRunning(measures []measure) bool {
	for _, m := range measures {
		if m.running {
			return true
		}
	}
	return false
}

// cumulative wraps an already grouped query so each count becomes a running
// sum over the ordered groups.
func cumulative(base string, groups, partition []string, measures []measure) string {
	window := "(ORDER BY " + strings.Join(groups, ", ") + " ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)"
	if len(partition) > 0 {
		window = "(PARTITION BY " + strings.Join(partition, ", ") + " ORDER BY " + strings.Join(groups, ", ") +
			" ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)"
	}

	cols := append([]string(nil), groups...)
	for _, m := range measures {
		if m.running {
			cols = append(cols, "toUInt64(sum("+m.alias+") OVER "+window+") AS running_"+m.alias)
		} else {
			cols = append(cols, m.alias)
		}
	}

	order := append(append([]string(nil), groups...), partition...)
	return "SELECT " + strings.Join(cols, ", ") + " FROM (" + base + ") ORDER BY " + strings.Join(order, ", ")
}

// ParamsSpec describes a facet query over every filterable column.
type ParamsSpec struct {
	PID      string
	Range    *timeframe.Range
	Filters  *filters.Compiled
	DataType filters.DataType
}

// BuildParams returns one statement yielding (column, value, count) for each
// allowed column. Traffic counts only unique visits unless an inclusive page
// filter is applied.
func BuildParams(spec ParamsSpec) query.Statement {
	c := compiledOrEmpty(spec.Filters)
	f := query.NewFragment()

	source := events.SourceTraffic
	switch spec.DataType {
	case filters.Performance:
		source = events.SourcePerformance
	case filters.Captcha:
		source = events.SourceCaptcha
	default:
		if c.CustomEventApplied {
			source = events.SourceCustomEvents
		}
	}

	var extra []string
	if source == events.SourceTraffic && !c.HasInclusive("pg") {
		extra = append(extra, "unique = 1")
	}
	where := whereClause(spec.PID, spec.Range, c, &f, extra...)

	columns := filters.AllowedColumns(spec.DataType)
	parts := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		parts = append(parts, fmt.Sprintf("SELECT '%s' AS param, %s AS value, toUInt64(count()) AS c FROM %s%s GROUP BY value",
			col, col, source.Table(), where))
	}
	if source == events.SourceCustomEvents {
		parts = append(parts, fmt.Sprintf("SELECT '%s' AS param, toNullable(name) AS value, toUInt64(count()) AS c FROM %s%s GROUP BY value",
			filters.EventColumn, source.Table(), where))
	}

	f.Text = "SELECT param, value, c FROM (" + strings.Join(parts, " UNION ALL ") + ") ORDER BY param, c DESC"
	return query.Build("params_"+string(spec.DataType), nil, f)
}

// BuildTotals counts visits, unique visits and the average session duration
// of a project over the range.
func BuildTotals(pid string, r *timeframe.Range, c *filters.Compiled) query.Statement {
	c = compiledOrEmpty(c)
	f := query.NewFragment()

	if c.CustomEventApplied {
		f.Text = "SELECT toUInt64(count()), toUInt64(uniqExact(psid)), toFloat64(0) FROM " +
			events.TableCustomEvents + whereClause(pid, r, c, &f)
		return query.Build("totals", nil, f)
	}

	f.Text = "SELECT toUInt64(count()), toUInt64(countIf(unique = 1)), " +
		"toFloat64(ifNotFinite(avgIf(sdur, sdur > 0), 0)) FROM " +
		events.TableTraffic + whereClause(pid, r, c, &f)
	return query.Build("totals", nil, f)
}

// BuildMeta breaks custom events down by metadata key and value.
func BuildMeta(pid string, r *timeframe.Range, c *filters.Compiled) query.Statement {
	f := query.NewFragment()
	f.Text = "SELECT meta.key AS meta_key, meta.value AS meta_value, toUInt64(count()) AS c FROM " +
		events.TableCustomEvents + " ARRAY JOIN meta" +
		whereClause(pid, r, compiledOrEmpty(c), &f) +
		" GROUP BY meta_key, meta_value ORDER BY c DESC, meta_key, meta_value"
	return query.Build("custom_event_meta", nil, f)
}

// FlowLimit caps the number of transitions read for the flow graph.
const FlowLimit = 300

// BuildFlows counts page transitions (previous page to page), self loops
// excluded, most frequent first.
func BuildFlows(pid string, r *timeframe.Range, c *filters.Compiled) query.Statement {
	f := query.NewFragment()
	f.Text = "SELECT assumeNotNull(prev) AS source, assumeNotNull(pg) AS target, toUInt64(count()) AS value FROM " +
		events.TableTraffic +
		whereClause(pid, r, compiledOrEmpty(c), &f, "pg IS NOT NULL", "prev IS NOT NULL", "pg != prev") +
		" GROUP BY source, target ORDER BY value DESC" +
		" LIMIT " + f.Bind("limit", FlowLimit)
	return query.Build("user_flow", nil, f)
}

// BuildPurge deletes the events of a project in a range from table, narrowed
// by the compiled filters.
func BuildPurge(table, pid string, r *timeframe.Range, c *filters.Compiled) query.Statement {
	f := query.NewFragment()
	f.Text = "ALTER TABLE " + table + " DELETE" + whereClause(pid, r, compiledOrEmpty(c), &f)
	return query.Build("purge_"+table, nil, f)
}

// BuildRetentionPurge deletes every event of table stored before cutoff,
// across all projects.
func BuildRetentionPurge(table string, cutoff time.Time) query.Statement {
	f := query.NewFragment()
	f.Text = "ALTER TABLE " + table + " DELETE WHERE created < " + f.Bind("cutoff", cutoff.UTC())
	return query.Build("retention_"+table, nil, f)
}

// BuildSessionDurationUpdate writes the final duration of a session.
func BuildSessionDurationUpdate(pid, psid string, seconds uint32) query.Statement {
	f := query.NewFragment()
	f.Text = "ALTER TABLE " + events.TableTraffic +
		" UPDATE sdur = " + f.Bind("sdur", seconds) +
		" WHERE pid = " + f.Bind("pid", pid) +
		" AND psid = " + f.Bind("psid", psid)
	return query.Build("session_duration", nil, f)
}
