package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/engine/internal/checkpoint"
	"github.com/convoflow/engine/pkg/api"
)

func newTestStore(t *testing.T) (*checkpoint.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return checkpoint.New(client, "test", 0), server
}

func newCheckpoint(
	sessionID api.SessionID, seq int64, next api.NodeID,
) *api.Checkpoint {
	return &api.Checkpoint{
		SessionID: sessionID,
		Seq:       seq,
		Next:      next,
		Status:    api.CheckpointRunning,
		State:     api.State{"intent": "faq"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestLatestEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	cp, err := store.Latest(context.Background(), "sess-none")
	assert.NoError(t, err)
	assert.Nil(t, cp)
}

func TestAppendThenLatest(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, newCheckpoint("sess-1", 1, "classify")))
	require.NoError(t, store.Append(ctx, newCheckpoint("sess-1", 2, "respond")))

	cp, err := store.Latest(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.Seq)
	assert.Equal(t, api.NodeID("respond"), cp.Next)
	assert.Equal(t, "faq", cp.State.GetString("intent", ""))
}

func TestAppendDuplicateSeqConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, newCheckpoint("sess-1", 1, "a")))

	err := store.Append(ctx, newCheckpoint("sess-1", 1, "b"))
	assert.ErrorIs(t, err, checkpoint.ErrConflict)

	// the log is untouched
	cp, err := store.Latest(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, api.NodeID("a"), cp.Next)
}

func TestAppendGapConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, newCheckpoint("sess-1", 1, "a")))

	err := store.Append(ctx, newCheckpoint("sess-1", 3, "c"))
	assert.ErrorIs(t, err, checkpoint.ErrConflict)
}

func TestAppendFirstMustBeOne(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Append(context.Background(), newCheckpoint("sess-1", 5, "a"))
	assert.ErrorIs(t, err, checkpoint.ErrConflict)
}

func TestSessionsIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, newCheckpoint("sess-a", 1, "x")))
	require.NoError(t, store.Append(ctx, newCheckpoint("sess-b", 1, "y")))

	cpA, err := store.Latest(ctx, "sess-a")
	require.NoError(t, err)
	cpB, err := store.Latest(ctx, "sess-b")
	require.NoError(t, err)

	assert.Equal(t, api.NodeID("x"), cpA.Next)
	assert.Equal(t, api.NodeID("y"), cpB.Next)
}

func TestRetentionExpiry(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := checkpoint.New(client, "test", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, newCheckpoint("sess-1", 1, "a")))

	server.FastForward(2 * time.Minute)

	cp, err := store.Latest(ctx, "sess-1")
	assert.NoError(t, err)
	assert.Nil(t, cp)
}
