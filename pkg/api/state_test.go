package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/convoflow/engine/pkg/api"
)

func TestMergeReplaceScalar(t *testing.T) {
	state := api.State{"intent": "unknown", "count": 1}
	merged := state.Merge(api.State{"intent": "faq"}, nil)

	assert.Equal(t, "faq", merged.GetString("intent", ""))
	assert.Equal(t, 1, merged.GetInt("count", 0))

	// original untouched
	assert.Equal(t, "unknown", state.GetString("intent", ""))
}

func TestMergeAppendList(t *testing.T) {
	policies := api.Policies{api.Messages: api.MergeAppend}

	state := api.UserMessage("hello")
	state = state.Merge(api.AssistantMessage("hi there"), policies)
	state = state.Merge(api.UserMessage("reset my password"), policies)

	msgs := state.GetMessages()
	assert.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hi there", msgs[1].Content)
	assert.Equal(t, "reset my password", msgs[2].Content)
}

func TestMergeAppendScalarPromotes(t *testing.T) {
	policies := api.Policies{"notes": api.MergeAppend}

	state := api.State{}
	state = state.Merge(api.State{"notes": "first"}, policies)
	state = state.Merge(api.State{"notes": "second"}, policies)

	assert.Equal(t, []any{"first", "second"}, state["notes"])
}

func TestMergeNilDelta(t *testing.T) {
	state := api.State{"intent": "faq"}
	assert.Equal(t, state, state.Merge(nil, nil))
}

func TestLastMessage(t *testing.T) {
	policies := api.Policies{api.Messages: api.MergeAppend}

	state := api.UserMessage("hello")
	state = state.Merge(api.AssistantMessage("first"), policies)
	state = state.Merge(api.AssistantMessage("second"), policies)

	msg, ok := state.LastMessage("assistant")
	assert.True(t, ok)
	assert.Equal(t, "second", msg.Content)

	_, ok = api.State{}.LastMessage("assistant")
	assert.False(t, ok)
}

func TestStateJSON(t *testing.T) {
	state := api.State{
		"intent":           "faq",
		"is_authenticated": true,
	}

	data, err := state.JSON()
	assert.NoError(t, err)
	assert.Equal(t, "faq", gjson.GetBytes(data, "intent").String())
	assert.True(t, gjson.GetBytes(data, "is_authenticated").Bool())
}

func TestSetDoesNotMutate(t *testing.T) {
	var state api.State
	res := state.Set("intent", "faq")

	assert.Nil(t, state)
	assert.Equal(t, "faq", res.GetString("intent", ""))
}

func TestGetMessagesAfterJSONRoundTrip(t *testing.T) {
	// values decoded from a checkpoint arrive as generic JSON types
	state := api.State{
		api.Messages: []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"content": "no role"},
		},
	}

	msgs := state.GetMessages()
	assert.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}
