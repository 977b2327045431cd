package helpers

import (
	"context"
	"sync"

	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/graph"
)

// MockModel is a scriptable implementation of model.Client for testing.
// Responses are keyed by the request's model name; queued responses are
// consumed in order so successive invocations can differ
type MockModel struct {
	responses map[string][]*api.CallResponse
	errors    map[string]error
	invoked   []*api.CallRequest
	mu        sync.Mutex
}

// NewMockModel creates a mock external-call client
func NewMockModel() *MockModel {
	return &MockModel{
		responses: map[string][]*api.CallResponse{},
		errors:    map[string]error{},
	}
}

func (m *MockModel) Invoke(
	_ context.Context, req *api.CallRequest,
) (*api.CallResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invoked = append(m.invoked, req)

	if err, ok := m.errors[req.Model]; ok {
		return nil, err
	}

	queue := m.responses[req.Model]
	if len(queue) == 0 {
		return &api.CallResponse{}, nil
	}

	resp := queue[0]
	if len(queue) > 1 {
		m.responses[req.Model] = queue[1:]
	}
	return resp, nil
}

// SetResponse makes every invocation for the model return resp
func (m *MockModel) SetResponse(model string, resp *api.CallResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[model] = []*api.CallResponse{resp}
}

// QueueResponses returns the given responses in order; the last one repeats
func (m *MockModel) QueueResponses(
	model string, resps ...*api.CallResponse,
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[model] = resps
}

// SetError makes every invocation for the model fail with err
func (m *MockModel) SetError(model string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[model] = err
}

// ClearError removes a scripted failure
func (m *MockModel) ClearError(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errors, model)
}

// Invocations returns a copy of all requests seen so far
func (m *MockModel) Invocations() []*api.CallRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*api.CallRequest, len(m.invoked))
	copy(result, m.invoked)
	return result
}

// InvocationCount returns how many invocations targeted the model
func (m *MockModel) InvocationCount(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, req := range m.invoked {
		if req.Model == model {
			n++
		}
	}
	return n
}

// NewTriageGraph builds a minimal intent-triage flow: a classify call node
// routes on the intent field to either a terminal respond node or a
// terminal escalate node. The classify request carries the "classify" model
// name so mocks can script it
func NewTriageGraph() (*graph.Graph, error) {
	return graph.NewBuilder().
		AddNode(&graph.Call{
			Name: "classify",
			Request: func(state api.State) *api.CallRequest {
				return &api.CallRequest{
					Model:    "classify",
					Messages: state.GetMessages(),
				}
			},
		}).
		AddNode(&graph.Transform{
			Name: "respond",
			Fn: func(api.State) *graph.Outcome {
				return &graph.Outcome{
					Delta: api.AssistantMessage("here is your answer"),
				}
			},
		}).
		AddNode(&graph.Transform{
			Name: "escalate",
			Fn: func(api.State) *graph.Outcome {
				return &graph.Outcome{
					Delta: api.State{"escalated": true},
				}
			},
		}).
		Entry("classify").
		Terminal("respond", "escalate").
		AddConditionalEdge("classify", "respond",
			&graph.Guard{Path: "intent", Equals: "faq"}).
		AddEdge("classify", "escalate").
		Field("intent", api.MergeReplace).
		Field("escalated", api.MergeReplace).
		Build()
}

// NewInterruptGraph builds a flow that gathers outside input: an ask node
// interrupts until the caller supplies an answer, then a terminal confirm
// node echoes it back
func NewInterruptGraph() (*graph.Graph, error) {
	return graph.NewBuilder().
		AddNode(&graph.Transform{
			Name: "ask",
			Fn: func(state api.State) *graph.Outcome {
				if _, ok := state["answer"]; !ok {
					return &graph.Outcome{
						Interrupt: true,
						Prompt:    "what is your account number?",
					}
				}
				return &graph.Outcome{}
			},
		}).
		AddNode(&graph.Transform{
			Name: "confirm",
			Fn: func(state api.State) *graph.Outcome {
				answer := state.GetString("answer", "")
				return &graph.Outcome{
					Delta: api.AssistantMessage("recorded: " + answer),
				}
			},
		}).
		Entry("ask").
		Terminal("confirm").
		AddEdge("ask", "confirm").
		Field("answer", api.MergeReplace).
		Build()
}

// NewLoopGraph builds a two-node cycle with no exit, for exercising the
// step budget
func NewLoopGraph() (*graph.Graph, error) {
	bounce := func(api.State) *graph.Outcome {
		return &graph.Outcome{}
	}
	return graph.NewBuilder().
		AddNode(&graph.Transform{Name: "ping", Fn: bounce}).
		AddNode(&graph.Transform{Name: "pong", Fn: bounce}).
		Entry("ping").
		AddEdge("ping", "pong").
		AddEdge("pong", "ping").
		Build()
}
