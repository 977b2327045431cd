package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/convoflow/engine/pkg/api"
)

func TestStatusPredicates(t *testing.T) {
	assert.True(t, api.CheckpointCompleted.IsTerminal())
	assert.False(t, api.CheckpointInterrupted.IsTerminal())

	assert.True(t, api.CheckpointRunning.IsResumable())
	assert.True(t, api.CheckpointInterrupted.IsResumable())
	assert.True(t, api.CheckpointFailed.IsResumable())
	assert.False(t, api.CheckpointCompleted.IsResumable())
}

func TestToResult(t *testing.T) {
	cp := &api.Checkpoint{
		SessionID: "sess-1",
		Seq:       4,
		Next:      "respond",
		Status:    api.CheckpointCompleted,
		State:     api.State{"intent": "faq"},
	}

	res := cp.ToResult()
	assert.Equal(t, api.ResultCompleted, res.Status)
	assert.Equal(t, api.NodeID("respond"), res.Node)
	assert.Equal(t, int64(4), res.Seq)
	assert.Equal(t, "faq", res.State.GetString("intent", ""))
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, api.SessionID("thread-1234"),
		api.SanitizeID(api.SessionID("Thread 1234")))
	assert.Equal(t, api.NodeID("idv-agent"),
		api.SanitizeID(api.NodeID("--IDV Agent!--")))
}
