package analytics

import (
	"github.com/samber/lo"

	"statwise/internal/events"
)

// UserFlowLink represents a connection between two pages in the user flow
type UserFlowLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Value  uint64 `json:"value"`
}

type UserFlowNode struct {
	ID string `json:"id"`
}

type UserFlowGraph struct {
	Nodes []UserFlowNode `json:"nodes"`
	Links []UserFlowLink `json:"links"`
}

// UserFlow splits transitions into two acyclic graphs. Ascending holds links
// whose source sorts before the target, Descending the rest.
type UserFlow struct {
	Ascending  UserFlowGraph `json:"ascending"`
	Descending UserFlowGraph `json:"descending"`
}

// BuildUserFlow keeps the first occurrence of every (source, target) pair in
// arrival order; repeated pairs are dropped, not summed.
func BuildUserFlow(edges []events.FlowEdge) UserFlow {
	unique := lo.UniqBy(edges, func(e events.FlowEdge) [2]string {
		return [2]string{e.Source, e.Target}
	})

	asc, desc := lo.FilterReject(unique, func(e events.FlowEdge, _ int) bool {
		return e.Source < e.Target
	})

	return UserFlow{
		Ascending:  buildGraph(asc),
		Descending: buildGraph(desc),
	}
}

func buildGraph(edges []events.FlowEdge) UserFlowGraph {
	g := UserFlowGraph{
		Nodes: []UserFlowNode{},
		Links: make([]UserFlowLink, 0, len(edges)),
	}

	var ids []string
	for _, e := range edges {
		g.Links = append(g.Links, UserFlowLink{Source: e.Source, Target: e.Target, Value: e.Value})
		ids = append(ids, e.Source, e.Target)
	}
	for _, id := range lo.Uniq(ids) {
		g.Nodes = append(g.Nodes, UserFlowNode{ID: id})
	}
	return g
}
