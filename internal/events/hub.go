// Package events fans checkpoint commits out to in-process subscribers,
// feeding the websocket layer. Delivery is best effort: a subscriber that
// falls behind loses events rather than stalling the engine loop.
package events

import (
	"sync"

	"github.com/convoflow/engine/internal/util"
	"github.com/convoflow/engine/pkg/api"
)

type (
	// Hub is an in-process publish/subscribe fan-out of checkpoint events
	Hub struct {
		mu   sync.Mutex
		subs map[api.SessionID]util.Set[chan *api.Checkpoint]
	}

	// CancelFunc detaches a subscription and closes its channel
	CancelFunc func()
)

const subscriberBuffer = 16

// NewHub creates an empty event hub
func NewHub() *Hub {
	return &Hub{
		subs: map[api.SessionID]util.Set[chan *api.Checkpoint]{},
	}
}

// Subscribe registers interest in a session's checkpoint events
func (h *Hub) Subscribe(
	sessionID api.SessionID,
) (<-chan *api.Checkpoint, CancelFunc) {
	ch := make(chan *api.Checkpoint, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sessionID]
	if !ok {
		set = util.Set[chan *api.Checkpoint]{}
		h.subs[sessionID] = set
	}
	set.Add(ch)

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[sessionID]; ok && set.Contains(ch) {
			set.Remove(ch)
			close(ch)
			if set.Len() == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers a checkpoint to the session's subscribers without
// blocking; slow subscribers miss events
func (h *Hub) Publish(cp *api.Checkpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[cp.SessionID] {
		select {
		case ch <- cp:
		default:
		}
	}
}
