package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/graph"
)

// executeNode dispatches a node by kind: pure transforms and routers run
// inline, external calls suspend on network I/O bounded by a timeout.
// These call boundaries are the engine's only suspension points
func (e *Engine) executeNode(
	ctx context.Context, node graph.Node, state api.State,
) (*graph.Outcome, error) {
	switch n := node.(type) {
	case *graph.Transform:
		return e.executeTransform(n, state)
	case *graph.Call:
		return e.executeCall(ctx, n, state)
	case *graph.Router:
		return e.executeRouter(n, state)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported node kind %s",
			ErrNodeContractViolation, node.ID(), node.Kind())
	}
}

// executeTransform runs a pure node. Transforms must not fail for any state
// the graph declares valid, so a panic is surfaced as a contract violation
func (e *Engine) executeTransform(
	n *graph.Transform, state api.State,
) (outcome *graph.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v",
				ErrNodeContractViolation, n.Name, r)
		}
	}()

	outcome = n.Fn(state)
	if outcome == nil {
		outcome = &graph.Outcome{}
	}
	return outcome, nil
}

// executeCall performs the node's single external invocation. Timeout and
// transport errors surface as recoverable; since no checkpoint is committed
// for the step, resume re-attempts the same node
func (e *Engine) executeCall(
	ctx context.Context, n *graph.Call, state api.State,
) (*graph.Outcome, error) {
	req := n.Request(state)
	if req == nil {
		return nil, fmt.Errorf("%w: %s: nil call request",
			ErrNodeContractViolation, n.Name)
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = e.config.CallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.model.Invoke(callCtx, req)
	if err != nil {
		return nil, err
	}

	if n.Apply != nil {
		return e.applyResponse(n, state, resp)
	}
	return defaultCallOutcome(resp), nil
}

func (e *Engine) applyResponse(
	n *graph.Call, state api.State, resp *api.CallResponse,
) (outcome *graph.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v",
				ErrNodeContractViolation, n.Name, r)
		}
	}()

	outcome = n.Apply(state, resp)
	if outcome == nil {
		outcome = &graph.Outcome{}
	}
	return outcome, nil
}

// defaultCallOutcome appends the response content to conversation history
// and merges any structured fields the call produced
func defaultCallOutcome(resp *api.CallResponse) *graph.Outcome {
	delta := maps.Clone(resp.Fields)
	if delta == nil {
		delta = api.State{}
	}
	if resp.Content != "" {
		delta[api.Messages] = []any{
			api.Message{Role: "assistant", Content: resp.Content},
		}
	}
	return &graph.Outcome{Delta: delta}
}

// executeRouter picks exactly one of the node's declared candidates without
// mutating state. A nil Pick defers to edge-guard evaluation
func (e *Engine) executeRouter(
	n *graph.Router, state api.State,
) (outcome *graph.Outcome, err error) {
	if n.Pick == nil {
		return &graph.Outcome{}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v",
				ErrNodeContractViolation, n.Name, r)
		}
	}()

	candidates := e.graph.Candidates(n.Name)
	picked, err := n.Pick(state, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoRouteMatched, n.Name, err)
	}
	if !slices.Contains(candidates, picked) {
		return nil, fmt.Errorf("%w: %s: %s is not a candidate",
			ErrNoRouteMatched, n.Name, picked)
	}
	return &graph.Outcome{Next: picked}, nil
}

// resolveNext determines the node to run after current: an explicit routing
// target wins, otherwise the first outgoing edge whose guard is satisfied
// by the new state
func (e *Engine) resolveNext(
	current api.NodeID, outcome *graph.Outcome, state api.State,
) (api.NodeID, error) {
	if outcome.Next != "" {
		if _, ok := e.graph.Node(outcome.Next); !ok {
			return "", fmt.Errorf("%w: %s routed to %s",
				ErrUnknownNode, current, outcome.Next)
		}
		return outcome.Next, nil
	}

	data, err := state.JSON()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w",
			ErrNodeContractViolation, current, err)
	}

	for _, edge := range e.graph.Edges(current) {
		if edge.Guard.Matches(data) {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("%w: from %s", ErrNoRouteMatched, current)
}
