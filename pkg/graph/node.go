package graph

import (
	"time"

	"github.com/convoflow/engine/pkg/api"
)

type (
	// Kind discriminates the three node behaviors. The engine dispatches on
	// it with a single switch at the executor boundary
	Kind string

	// Node is a unit of computation in a flow graph
	Node interface {
		ID() api.NodeID
		Kind() Kind
	}

	// Outcome is what a node execution produces: a state delta and a routing
	// decision. An empty Next means the engine resolves the next node from
	// the graph's outgoing edges
	Outcome struct {
		Delta api.State

		// Next explicitly targets a node, overriding edge evaluation
		Next api.NodeID

		// Interrupt pauses the session for outside input. The node re-runs
		// on resume, with Prompt surfaced to the caller meanwhile
		Interrupt bool
		Prompt    string
	}

	// TransformFunc is a deterministic function of state with no external
	// I/O. It must not panic for any state shape the graph declares valid;
	// a panic is a node contract violation
	TransformFunc func(api.State) *Outcome

	// RequestFunc builds the external invocation payload from current state
	RequestFunc func(api.State) *api.CallRequest

	// ResponseFunc folds an external call's response into an outcome
	ResponseFunc func(api.State, *api.CallResponse) *Outcome

	// PickFunc selects exactly one of the candidate next nodes
	PickFunc func(api.State, []api.NodeID) (api.NodeID, error)

	// Transform is a pure state transformation node
	Transform struct {
		Fn   TransformFunc
		Name api.NodeID
	}

	// Call performs one external model/tool invocation with an explicit
	// timeout. Apply may be nil, in which case the response content is
	// appended to conversation history and Fields are merged as a delta
	Call struct {
		Request RequestFunc
		Apply   ResponseFunc
		Name    api.NodeID
		Timeout time.Duration
	}

	// Router consults state to choose among the node's outgoing edges
	// without mutating state. Pick may be nil, in which case the engine
	// evaluates edge guards in declaration order
	Router struct {
		Pick PickFunc
		Name api.NodeID
	}
)

const (
	KindTransform Kind = "transform"
	KindCall      Kind = "call"
	KindRouter    Kind = "router"
)

func (t *Transform) ID() api.NodeID { return t.Name }
func (t *Transform) Kind() Kind     { return KindTransform }

func (c *Call) ID() api.NodeID { return c.Name }
func (c *Call) Kind() Kind     { return KindCall }

func (r *Router) ID() api.NodeID { return r.Name }
func (r *Router) Kind() Kind     { return KindRouter }
