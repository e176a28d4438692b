// Package query holds SQL fragments for the event store together with their
// bound parameters. Placeholders use the native named form @name; values are
// never written into the text.
package query

import (
	"sort"
	"strings"
)

// Params maps placeholder names to bound values.
type Params map[string]any

// Fragment is a piece of SQL text plus the parameters it references.
type Fragment struct {
	Text   string
	Params Params
}

// NewFragment returns an empty fragment ready for appending.
func NewFragment() Fragment {
	return Fragment{Params: Params{}}
}

// Append adds text and merges params into the fragment.
func (f *Fragment) Append(text string, params Params) {
	f.Text += text
	if f.Params == nil {
		f.Params = Params{}
	}
	for k, v := range params {
		f.Params[k] = v
	}
}

// Bind registers a single parameter and returns its placeholder.
func (f *Fragment) Bind(name string, value any) string {
	if f.Params == nil {
		f.Params = Params{}
	}
	f.Params[name] = value
	return "@" + name
}

// Merge appends another fragment.
func (f *Fragment) Merge(other Fragment) {
	f.Append(other.Text, other.Params)
}

func (f Fragment) Empty() bool {
	return strings.TrimSpace(f.Text) == ""
}

// Statement is a complete query. Groups lists the leading grouping columns
// the store decodes before the measures.
type Statement struct {
	Name   string
	SQL    string
	Params Params
	Groups []string
}

// Build assembles a statement from fragments.
func Build(name string, groups []string, parts ...Fragment) Statement {
	var sb strings.Builder
	params := Params{}
	for _, p := range parts {
		sb.WriteString(p.Text)
		for k, v := range p.Params {
			params[k] = v
		}
	}
	return Statement{Name: name, SQL: sb.String(), Params: params, Groups: groups}
}

// Names returns the parameter names in sorted order.
func (s Statement) Names() []string {
	names := make([]string, 0, len(s.Params))
	for k := range s.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
