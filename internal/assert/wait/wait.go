// Package wait provides test helpers for receiving checkpoint events from
// the hub with deadlines and predicate filters
package wait

import (
	"testing"
	"time"

	"github.com/convoflow/engine/pkg/api"
)

type (
	Wait struct {
		t       *testing.T
		events  <-chan *api.Checkpoint
		timeout time.Duration
	}

	Filter func(*api.Checkpoint) bool
)

const DefaultTimeout = 5 * time.Second

// On creates a waiter over a checkpoint subscription channel
func On(t *testing.T, events <-chan *api.Checkpoint) *Wait {
	return &Wait{
		t:       t,
		events:  events,
		timeout: DefaultTimeout,
	}
}

func (w *Wait) WithTimeout(timeout time.Duration) *Wait {
	res := *w
	res.timeout = timeout
	return &res
}

// ForCheckpoint waits for the first checkpoint matching the filter,
// discarding non-matching ones. Fails the test on timeout
func (w *Wait) ForCheckpoint(filter Filter) *api.Checkpoint {
	w.t.Helper()

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	for {
		select {
		case cp, ok := <-w.events:
			if !ok {
				w.t.Fatal("event channel closed while waiting")
				return nil
			}
			if filter == nil || filter(cp) {
				return cp
			}
		case <-deadline.C:
			w.t.Fatal("timed out waiting for checkpoint event")
			return nil
		}
	}
}

// ForStatus waits for a checkpoint carrying the given status
func (w *Wait) ForStatus(status api.CheckpointStatus) *api.Checkpoint {
	w.t.Helper()
	return w.ForCheckpoint(Status(status))
}

// ForCount receives exactly count checkpoints in arrival order
func (w *Wait) ForCount(count int) []*api.Checkpoint {
	w.t.Helper()
	res := make([]*api.Checkpoint, 0, count)
	for len(res) < count {
		res = append(res, w.ForCheckpoint(nil))
	}
	return res
}

// Status filters checkpoints by status
func Status(statuses ...api.CheckpointStatus) Filter {
	return func(cp *api.Checkpoint) bool {
		for _, s := range statuses {
			if cp.Status == s {
				return true
			}
		}
		return false
	}
}

// Session filters checkpoints by session
func Session(sessionID api.SessionID) Filter {
	return func(cp *api.Checkpoint) bool {
		return cp.SessionID == sessionID
	}
}
