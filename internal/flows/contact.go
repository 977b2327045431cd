// Package flows assembles the flow graphs shipped with the engine. The
// contact-center flow is the default: a supervisor model triages each
// message, an identity-verification loop gathers credentials from the
// caller, and an items agent serves authenticated account requests.
package flows

import (
	"github.com/convoflow/engine/internal/config"
	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/graph"
)

const (
	supervisorPrompt = "You are a contact center supervisor. Greet the " +
		"user, then decide what they need. Reply with an intent field: " +
		"\"items\" when an authenticated user wants to see or manage " +
		"their items, otherwise \"general\"."

	idvPrompt = "You are a user authentication assistant. Ask the user " +
		"for their phone number and pin, look the customer up, and send " +
		"a one-time passcode. Reply with a customer_id field once the " +
		"customer is found."

	itemsPrompt = "You are an item assistant. Help the user see and " +
		"manage their items."

	otpPrompt = "Please enter the one-time passcode we sent you."
)

// NewContactCenter builds the default conversation flow. Unauthenticated
// sessions are routed through identity verification, which interrupts the
// flow until the caller supplies the passcode
func NewContactCenter(cfg *config.Config) (*graph.Graph, error) {
	return graph.NewBuilder().
		AddNode(&graph.Transform{
			Name: "auth-check",
			Fn:   checkAuthentication,
		}).
		AddNode(&graph.Call{
			Name:    "supervisor",
			Request: promptRequest(cfg, supervisorPrompt),
		}).
		AddNode(&graph.Router{Name: "route"}).
		AddNode(&graph.Call{
			Name:    "idv",
			Request: promptRequest(cfg, idvPrompt),
		}).
		AddNode(&graph.Transform{
			Name: "verify-otp",
			Fn:   verifyPasscode,
		}).
		AddNode(&graph.Call{
			Name:    "items",
			Request: promptRequest(cfg, itemsPrompt),
		}).
		AddNode(&graph.Transform{
			Name: "respond",
			Fn:   finalResponse,
		}).
		Entry("auth-check").
		Terminal("respond").
		AddEdge("auth-check", "supervisor").
		AddEdge("supervisor", "route").
		AddConditionalEdge("route", "idv",
			&graph.Guard{Path: "is_authenticated", Equals: false}).
		AddConditionalEdge("route", "items",
			&graph.Guard{Path: "intent", Equals: "items"}).
		AddEdge("route", "respond").
		AddEdge("idv", "verify-otp").
		AddEdge("verify-otp", "auth-check").
		AddEdge("items", "respond").
		Field("customer_id", api.MergeReplace).
		Field("pending_customer_id", api.MergeReplace).
		Field("is_authenticated", api.MergeReplace).
		Field("intent", api.MergeReplace).
		Field("last_response", api.MergeReplace).
		Field("otp", api.MergeReplace).
		Default("is_authenticated", false).
		Build()
}

// promptRequest builds a call request carrying the node's system prompt
// and the conversation so far
func promptRequest(cfg *config.Config, system string) graph.RequestFunc {
	model := cfg.ModelName
	return func(state api.State) *api.CallRequest {
		return &api.CallRequest{
			Model:    model,
			System:   system,
			Messages: state.GetMessages(),
		}
	}
}

// checkAuthentication marks the session authenticated once identity
// verification recorded a customer id
func checkAuthentication(state api.State) *graph.Outcome {
	authenticated := state.GetString("customer_id", "") != ""
	return &graph.Outcome{
		Delta: api.State{"is_authenticated": authenticated},
	}
}

// verifyPasscode pauses the flow until the caller supplies the one-time
// passcode, then confirms the pending customer
func verifyPasscode(state api.State) *graph.Outcome {
	if state.GetString("otp", "") == "" {
		return &graph.Outcome{
			Interrupt: true,
			Prompt:    otpPrompt,
		}
	}
	return &graph.Outcome{
		Delta: api.State{
			"customer_id": state.GetString("pending_customer_id", ""),
		},
	}
}

func finalResponse(state api.State) *graph.Outcome {
	if msg, ok := state.LastMessage("assistant"); ok {
		return &graph.Outcome{
			Delta: api.State{"last_response": msg.Content},
		}
	}
	return &graph.Outcome{}
}
