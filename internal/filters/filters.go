// Package filters compiles client filter lists into parameterized predicates.
package filters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"statwise/internal/apperr"
	"statwise/internal/query"
)

// DataType selects the allowed column set.
type DataType string

const (
	Traffic     DataType = "traffic"
	Performance DataType = "performance"
	Captcha     DataType = "captcha"
)

// EventColumn is the custom-event name filter. It is valid for every data
// type and moves traffic queries onto the custom-event table.
const EventColumn = "ev"

const eventDBColumn = "name"

var allowedColumns = map[DataType][]string{
	Traffic:     {"cc", "rg", "ct", "pg", "prev", "host", "lc", "ref", "dv", "br", "brv", "os", "osv", "so", "me", "ca", "te", "co"},
	Performance: {"cc", "rg", "ct", "pg", "dv", "br"},
	Captcha:     {"cc", "br", "os", "dv"},
}

var pathColumns = map[string]bool{"pg": true, "prev": true}

// AllowedColumns returns the filterable columns for dt, without ev.
func AllowedColumns(dt DataType) []string {
	return append([]string(nil), allowedColumns[dt]...)
}

// Clause is one client filter. A nil Filter matches NULL.
type Clause struct {
	Column      string  `json:"column"`
	Filter      *string `json:"filter"`
	IsExclusive bool    `json:"isExclusive"`
}

// Compiled is the result of compiling a filter list.
type Compiled struct {
	Fragment           query.Fragment
	Applied            []Clause
	CustomEventApplied bool
}

// HasInclusive reports an inclusive, non-null clause on column.
func (c *Compiled) HasInclusive(column string) bool {
	return lo.ContainsBy(c.Applied, func(cl Clause) bool {
		return cl.Column == column && !cl.IsExclusive && cl.Filter != nil
	})
}

// Empty returns a compiled result with no predicate.
func Empty() *Compiled {
	return &Compiled{Fragment: query.NewFragment(), Applied: []Clause{}}
}

// Compile parses raw and builds the predicate for dt. Unparsable JSON is
// logged and treated as no filters.
func Compile(raw string, dt DataType, logger *slog.Logger) (*Compiled, error) {
	if _, ok := allowedColumns[dt]; !ok {
		return nil, apperr.BadRequest("unsupported data type")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Empty(), nil
	}

	var decoded json.RawMessage
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logger.Warn("ignoring malformed filters", slog.String("filters", raw), slog.Any("error", err))
		return Empty(), nil
	}
	if !bytes.HasPrefix(bytes.TrimSpace(decoded), []byte("[")) {
		return nil, apperr.Unprocessable("filters must be an array")
	}

	var clauses []Clause
	if err := json.Unmarshal(decoded, &clauses); err != nil {
		return nil, apperr.Unprocessable("filters must be an array of filter objects")
	}

	allowed := allowedColumns[dt]
	for _, cl := range clauses {
		if cl.Column != EventColumn && !lo.Contains(allowed, cl.Column) {
			return nil, apperr.BadRequest(fmt.Sprintf("unsupported filter: %s", cl.Column))
		}
	}

	out := &Compiled{Fragment: query.NewFragment(), Applied: clauses}
	if out.Applied == nil {
		out.Applied = []Clause{}
	}

	grouped := lo.GroupBy(clauses, func(cl Clause) string { return cl.Column })
	order := lo.Uniq(lo.Map(clauses, func(cl Clause, _ int) string { return cl.Column }))

	for _, column := range order {
		if column == EventColumn {
			out.CustomEventApplied = true
		}
		out.Fragment.Merge(columnPredicate(column, grouped[column]))
	}

	return out, nil
}

func columnPredicate(column string, clauses []Clause) query.Fragment {
	dbColumn := column
	if column == EventColumn {
		dbColumn = eventDBColumn
	}

	f := query.NewFragment()
	terms := make([]string, 0, len(clauses))
	for i, cl := range clauses {
		var term string
		if cl.Filter == nil {
			if cl.IsExclusive {
				term = dbColumn + " IS NOT NULL"
			} else {
				term = dbColumn + " IS NULL"
			}
		} else {
			value := *cl.Filter
			if pathColumns[column] {
				value = NormalizePath(value)
			}
			ph := f.Bind(fmt.Sprintf("qf_%s_%d", column, i), value)
			term = dbColumn + " = " + ph
			if cl.IsExclusive {
				term = "NOT " + term
			}
		}
		terms = append(terms, term)
	}

	f.Text = " AND (" + strings.Join(terms, " OR ") + ")"
	return f
}

var componentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
	"%2F", "/",
)

// NormalizePath decodes a path value and re-encodes it the way stored page
// paths are encoded, keeping literal slashes.
func NormalizePath(value string) string {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		decoded = value
	}
	return componentUnescapes.Replace(url.QueryEscape(decoded))
}
