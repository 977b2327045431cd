package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/engine/internal/events"
	"github.com/convoflow/engine/pkg/api"
)

func TestSubscribeReceivesOwnSession(t *testing.T) {
	hub := events.NewHub()

	ch, cancel := hub.Subscribe("sess-1")
	defer cancel()

	hub.Publish(&api.Checkpoint{SessionID: "sess-1", Seq: 1})
	hub.Publish(&api.Checkpoint{SessionID: "sess-other", Seq: 1})

	select {
	case cp := <-ch:
		assert.Equal(t, api.SessionID("sess-1"), cp.SessionID)
	default:
		t.Fatal("expected a checkpoint event")
	}

	select {
	case cp := <-ch:
		t.Fatalf("unexpected event for session %s", cp.SessionID)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := events.NewHub()

	ch, cancel := hub.Subscribe("sess-1")
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// publishing after cancel must not panic
	hub.Publish(&api.Checkpoint{SessionID: "sess-1", Seq: 1})

	// double cancel is safe
	cancel()
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := events.NewHub()

	ch, cancel := hub.Subscribe("sess-1")
	defer cancel()

	for i := int64(1); i <= 64; i++ {
		hub.Publish(&api.Checkpoint{SessionID: "sess-1", Seq: i})
	}

	var received int
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}

	require.Greater(t, received, 0)
	assert.Less(t, received, 64)
}
