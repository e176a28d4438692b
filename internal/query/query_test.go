package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"statwise/internal/query"
)

func TestFragmentBindAndBuild(t *testing.T) {
	where := query.NewFragment()
	ph := where.Bind("pid", "abc123")
	where.Append(" WHERE pid = "+ph, nil)

	filter := query.Fragment{Text: " AND (cc = @qf_cc_0)", Params: query.Params{"qf_cc_0": "DE"}}

	stmt := query.Build("traffic", []string{"year"}, query.Fragment{Text: "SELECT count() FROM analytics"}, where, filter)

	assert.Equal(t, "SELECT count() FROM analytics WHERE pid = @pid AND (cc = @qf_cc_0)", stmt.SQL)
	assert.Equal(t, []string{"pid", "qf_cc_0"}, stmt.Names())
	assert.Equal(t, "DE", stmt.Params["qf_cc_0"])
	assert.Equal(t, []string{"year"}, stmt.Groups)
	assert.NotContains(t, stmt.SQL, "abc123")
}

func TestFragmentEmpty(t *testing.T) {
	assert.True(t, query.NewFragment().Empty())

	var f query.Fragment
	f.Merge(query.Fragment{Text: " AND x = @x", Params: query.Params{"x": 1}})
	assert.False(t, f.Empty())
	assert.Equal(t, 1, f.Params["x"])
}
