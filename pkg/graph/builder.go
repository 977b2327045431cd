package graph

import (
	"errors"
	"fmt"

	"github.com/convoflow/engine/internal/util"
	"github.com/convoflow/engine/pkg/api"
)

// Builder assembles a Graph from runtime configuration. All structural
// validation happens in Build
type Builder struct {
	nodes     map[api.NodeID]Node
	edges     map[api.NodeID][]*Edge
	terminals util.Set[api.NodeID]
	policies  api.Policies
	defaults  api.State
	entry     api.NodeID
	order     []api.NodeID
	errs      []error
}

var (
	ErrNoNodes          = errors.New("graph has no nodes")
	ErrNoEntry          = errors.New("graph has no entry node")
	ErrDuplicateNode    = errors.New("duplicate node")
	ErrUndefinedNode    = errors.New("edge references undefined node")
	ErrUndefinedEntry   = errors.New("entry references undefined node")
	ErrUndefinedEnd     = errors.New("terminal references undefined node")
	ErrDeadEndNode      = errors.New("non-terminal node has no outgoing edges")
	ErrPolicyConflict   = errors.New("conflicting merge policy for field")
	ErrInvalidGuardPath = errors.New("guard has empty path")
	ErrNilNode          = errors.New("nil node")
)

// NewBuilder creates an empty graph builder. The conversation history
// field is pre-declared with the Append policy
func NewBuilder() *Builder {
	return &Builder{
		nodes:     map[api.NodeID]Node{},
		edges:     map[api.NodeID][]*Edge{},
		terminals: util.Set[api.NodeID]{},
		policies:  api.Policies{api.Messages: api.MergeAppend},
		defaults:  api.State{},
	}
}

// AddNode registers a node under its identifier
func (b *Builder) AddNode(node Node) *Builder {
	if node == nil {
		b.errs = append(b.errs, ErrNilNode)
		return b
	}
	id := node.ID()
	if _, ok := b.nodes[id]; ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, id))
		return b
	}
	b.nodes[id] = node
	b.order = append(b.order, id)
	return b
}

// AddEdge adds an unconditional edge between two nodes
func (b *Builder) AddEdge(from, to api.NodeID) *Builder {
	return b.addEdge(&Edge{From: from, To: to})
}

// AddConditionalEdge adds an edge guarded by a predicate over state
func (b *Builder) AddConditionalEdge(
	from, to api.NodeID, guard *Guard,
) *Builder {
	if guard != nil && guard.Path == "" {
		b.errs = append(b.errs, fmt.Errorf("%w: %s -> %s",
			ErrInvalidGuardPath, from, to))
	}
	return b.addEdge(&Edge{From: from, To: to, Guard: guard})
}

func (b *Builder) addEdge(edge *Edge) *Builder {
	b.edges[edge.From] = append(b.edges[edge.From], edge)
	return b
}

// Entry designates the graph's single entry node
func (b *Builder) Entry(id api.NodeID) *Builder {
	b.entry = id
	return b
}

// Terminal designates nodes at which execution completes
func (b *Builder) Terminal(ids ...api.NodeID) *Builder {
	for _, id := range ids {
		b.terminals.Add(id)
	}
	return b
}

// Field declares the merge policy for a state field. The declaration must
// be consistent; redeclaring a field with a different policy is an error
func (b *Builder) Field(name api.Name, policy api.MergePolicy) *Builder {
	if existing, ok := b.policies[name]; ok && existing != policy {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrPolicyConflict, name))
		return b
	}
	b.policies[name] = policy
	return b
}

// Default sets an initial state value for new sessions
func (b *Builder) Default(name api.Name, value any) *Builder {
	b.defaults[name] = value
	return b
}

// Build validates the assembled definition and returns the immutable Graph.
// Validation is eager: undefined references, dead-end nodes, and conflicting
// merge policies are all reported here, not mid-execution
func (b *Builder) Build() (*Graph, error) {
	errs := b.errs

	if len(b.nodes) == 0 {
		errs = append(errs, ErrNoNodes)
	}

	if b.entry == "" {
		errs = append(errs, ErrNoEntry)
	} else if _, ok := b.nodes[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("%w: %s", ErrUndefinedEntry, b.entry))
	}

	for id := range b.terminals {
		if _, ok := b.nodes[id]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUndefinedEnd, id))
		}
	}

	for from, edges := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUndefinedNode, from))
		}
		for _, edge := range edges {
			if _, ok := b.nodes[edge.To]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s -> %s",
					ErrUndefinedNode, edge.From, edge.To))
			}
		}
	}

	for _, id := range b.order {
		if b.terminals.Contains(id) {
			continue
		}
		if len(b.edges[id]) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDeadEndNode, id))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Graph{
		nodes:     b.nodes,
		edges:     b.edges,
		entry:     b.entry,
		terminals: b.terminals,
		policies:  b.policies,
		defaults:  b.defaults,
	}, nil
}
