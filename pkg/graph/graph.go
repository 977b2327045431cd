// Package graph defines the immutable flow graph: nodes, guarded edges,
// entry and terminal points, and per-field state merge policies. Graphs are
// built once at startup via a Builder that validates eagerly, so malformed
// graphs fail fast rather than mid-execution.
package graph

import (
	"maps"

	"github.com/tidwall/gjson"

	"github.com/convoflow/engine/internal/util"
	"github.com/convoflow/engine/pkg/api"
)

type (
	// Graph is an immutable, validated flow definition
	Graph struct {
		nodes     map[api.NodeID]Node
		edges     map[api.NodeID][]*Edge
		terminals util.Set[api.NodeID]
		policies  api.Policies
		defaults  api.State
		entry     api.NodeID
	}

	// Edge is a directed connection between two nodes, optionally guarded
	// by a predicate over current state
	Edge struct {
		Guard *Guard
		From  api.NodeID
		To    api.NodeID
	}

	// Guard is a declarative predicate over the state's JSON form: the
	// value at Path must equal Equals. A nil Guard is unconditional
	Guard struct {
		Equals any
		Path   string
	}
)

// Entry returns the graph's designated entry node
func (g *Graph) Entry() api.NodeID {
	return g.entry
}

// Node retrieves a node by identifier
func (g *Graph) Node(id api.NodeID) (Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Edges returns the outgoing edges of a node in declaration order
func (g *Graph) Edges(id api.NodeID) []*Edge {
	return g.edges[id]
}

// Candidates returns the target nodes of a node's outgoing edges
func (g *Graph) Candidates(id api.NodeID) []api.NodeID {
	edges := g.edges[id]
	res := make([]api.NodeID, len(edges))
	for i, edge := range edges {
		res[i] = edge.To
	}
	return res
}

// IsTerminal returns true if the node is a designated terminal point
func (g *Graph) IsTerminal(id api.NodeID) bool {
	return g.terminals.Contains(id)
}

// Policies returns the per-field merge policies declared at build time
func (g *Graph) Policies() api.Policies {
	return g.policies
}

// Defaults returns a copy of the initial state for new sessions
func (g *Graph) Defaults() api.State {
	return maps.Clone(g.defaults)
}

// Matches evaluates the guard against the state's JSON form. A nil guard
// always matches
func (gd *Guard) Matches(stateJSON []byte) bool {
	if gd == nil {
		return true
	}

	res := gjson.GetBytes(stateJSON, gd.Path)
	if !res.Exists() {
		return false
	}

	switch want := gd.Equals.(type) {
	case string:
		return res.Type == gjson.String && res.String() == want
	case bool:
		return res.IsBool() && res.Bool() == want
	case int:
		return res.Type == gjson.Number && res.Num == float64(want)
	case int64:
		return res.Type == gjson.Number && res.Num == float64(want)
	case float64:
		return res.Type == gjson.Number && res.Num == want
	case nil:
		return res.Type == gjson.Null
	default:
		return false
	}
}
