package flows_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/engine/internal/assert/helpers"
	"github.com/convoflow/engine/internal/flows"
	"github.com/convoflow/engine/pkg/api"
)

func newContactEnv(t *testing.T) *helpers.TestEngineEnv {
	t.Helper()

	cfg := helpers.NewTestConfig()
	g, err := flows.NewContactCenter(cfg)
	require.NoError(t, err)

	return helpers.NewTestEngine(t, g)
}

func TestContactCenterBuilds(t *testing.T) {
	g, err := flows.NewContactCenter(helpers.NewTestConfig())
	require.NoError(t, err)

	assert.Equal(t, api.NodeID("auth-check"), g.Entry())
	assert.True(t, g.IsTerminal("respond"))
	assert.Equal(t, api.MergeAppend, g.Policies()[api.Messages])
	assert.Equal(t, false, g.Defaults()["is_authenticated"])
}

func TestContactCenterGeneralInquiry(t *testing.T) {
	env := newContactEnv(t)
	model := env.Config.ModelName

	// already authenticated; supervisor triages to a general answer
	env.MockModel.QueueResponses(model, &api.CallResponse{
		Fields:  api.State{"intent": "general"},
		Content: "hello, how can I help?",
	})

	res, err := env.Engine.Run(
		context.Background(), "c-general",
		api.State{"customer_id": "8675309"}.Merge(
			api.UserMessage("Hi"),
			api.Policies{api.Messages: api.MergeAppend},
		),
	)
	require.NoError(t, err)

	assert.Equal(t, api.ResultCompleted, res.Status)
	assert.Equal(t, api.NodeID("respond"), res.Node)
	assert.Equal(t, true, res.State["is_authenticated"])
	assert.Equal(t,
		"hello, how can I help?",
		res.State.GetString("last_response", ""))
}

func TestContactCenterIdentityVerification(t *testing.T) {
	env := newContactEnv(t)
	model := env.Config.ModelName

	env.MockModel.QueueResponses(model,
		// supervisor sees an unauthenticated caller
		&api.CallResponse{
			Fields:  api.State{"intent": "items"},
			Content: "let me verify your identity first",
		},
		// identity verification finds the customer and sends a passcode
		&api.CallResponse{
			Fields:  api.State{"pending_customer_id": "8675309"},
			Content: "customer found, passcode sent",
		},
		// supervisor re-triages the now-authenticated caller
		&api.CallResponse{
			Fields: api.State{"intent": "items"},
		},
		// items agent answers
		&api.CallResponse{
			Content: "you have 2 items",
		},
	)

	sessionID := api.SessionID("c-idv")
	res, err := env.Engine.Run(
		context.Background(), sessionID,
		api.UserMessage("show me my items"),
	)
	require.NoError(t, err)

	// the flow pauses waiting for the passcode
	assert.Equal(t, api.ResultInterrupted, res.Status)
	assert.Equal(t, api.NodeID("verify-otp"), res.Node)

	msg, ok := res.State.LastMessage("assistant")
	require.True(t, ok)
	assert.Equal(t, "Please enter the one-time passcode we sent you.", msg.Content)

	// the caller supplies the passcode and the flow runs to completion
	res, err = env.Engine.Run(
		context.Background(), sessionID,
		api.State{"otp": "123456"},
	)
	require.NoError(t, err)

	assert.Equal(t, api.ResultCompleted, res.Status)
	assert.Equal(t, api.NodeID("respond"), res.Node)
	assert.Equal(t, "8675309", res.State.GetString("customer_id", ""))
	assert.Equal(t, true, res.State["is_authenticated"])
	assert.Equal(t,
		"you have 2 items", res.State.GetString("last_response", ""))
}
