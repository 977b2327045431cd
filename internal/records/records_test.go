package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/engine/internal/records"
	"github.com/convoflow/engine/pkg/api"
)

func newTestStore(t *testing.T) *records.Store {
	t.Helper()

	store, err := records.Open(
		context.Background(), "mem://conversations/id",
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	completedAt := time.Now().UTC().Truncate(time.Second)
	rec := &records.Record{
		ID:        "sess-1",
		SessionID: "sess-1",
		Node:      "respond",
		Transcript: []api.Message{
			{Role: "user", Content: "reset my password"},
			{Role: "assistant", Content: "done"},
		},
		State:       api.State{"intent": "faq"},
		Steps:       3,
		CompletedAt: completedAt,
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, api.SessionID("sess-1"), got.SessionID)
	assert.Equal(t, api.NodeID("respond"), got.Node)
	assert.Len(t, got.Transcript, 2)
	assert.Equal(t, int64(3), got.Steps)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &records.Record{ID: "sess-1", SessionID: "sess-1", Steps: 1}
	require.NoError(t, store.Save(ctx, first))

	second := &records.Record{ID: "sess-1", SessionID: "sess-1", Steps: 5}
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Steps)
}

func TestFromResult(t *testing.T) {
	res := &api.Result{
		SessionID: "sess-9",
		Status:    api.ResultCompleted,
		Node:      "respond",
		Seq:       4,
		State: api.UserMessage("hi").Merge(
			api.AssistantMessage("hello"),
			api.Policies{api.Messages: api.MergeAppend},
		),
	}

	rec := records.FromResult(res, time.Now())
	assert.Equal(t, "sess-9", rec.ID)
	assert.Len(t, rec.Transcript, 2)
	assert.Equal(t, int64(4), rec.Steps)
}
