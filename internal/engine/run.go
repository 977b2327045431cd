package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/convoflow/engine/internal/arbiter"
	"github.com/convoflow/engine/internal/records"
	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/log"
)

const commitTimeout = 5 * time.Second

// Run delivers input into a session's flow and advances it until the flow
// completes, interrupts, or fails. A fresh session starts at the graph's
// entry node with default state; an existing one continues from its latest
// checkpoint. Returns arbiter.ErrSessionBusy while another live execution
// holds the session
func (e *Engine) Run(
	ctx context.Context, sessionID api.SessionID, input api.State,
) (*api.Result, error) {
	return e.execute(ctx, sessionID, input, false)
}

// Resume re-enters a session from its latest non-terminal checkpoint. The
// node recorded as next re-executes; a node that failed without committing
// a checkpoint is therefore re-attempted. Resuming a completed session is a
// no-op returning the existing terminal result
func (e *Engine) Resume(
	ctx context.Context, sessionID api.SessionID,
) (*api.Result, error) {
	return e.execute(ctx, sessionID, nil, true)
}

func (e *Engine) execute(
	ctx context.Context, sessionID api.SessionID, input api.State,
	resuming bool,
) (*api.Result, error) {
	lease, err := e.arbiter.Acquire(
		ctx, sessionID, e.executorID, e.config.LeaseTTL,
	)
	if err != nil {
		return nil, err
	}
	defer e.releaseLease(lease)

	latest, err := e.checkpoints.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if latest != nil && latest.Status.IsTerminal() {
		slog.Info("Session already completed",
			log.SessionID(sessionID),
			log.Seq(latest.Seq))
		return latest.ToResult(), nil
	}
	if latest == nil && resuming {
		return nil, fmt.Errorf("%w: %s", ErrNothingToResume, sessionID)
	}

	state := e.graph.Defaults()
	current := e.graph.Entry()
	var seq int64

	if latest != nil {
		state = latest.State
		current = latest.Next
		seq = latest.Seq
	}
	if len(input) > 0 {
		state = state.Merge(input, e.graph.Policies())
	}

	slog.Info("Session execution starting",
		log.SessionID(sessionID),
		log.NodeID(current),
		log.Seq(seq))

	return e.loop(ctx, sessionID, lease, state, current, seq)
}

// loop is the checkpoint-then-advance protocol: execute the current node,
// merge its delta, commit a checkpoint, only then move on. Crash-after-step
// recovery therefore never re-executes a completed node
func (e *Engine) loop(
	ctx context.Context, sessionID api.SessionID, lease *arbiter.Lease,
	state api.State, current api.NodeID, seq int64,
) (*api.Result, error) {
	for steps := 0; ; steps++ {
		// cancellation is honored between steps, never mid-node
		if ctx.Err() != nil {
			return e.interrupt(sessionID, state, current, seq+1)
		}

		if steps >= e.config.StepLimit {
			return e.fail(sessionID, state, current, seq+1,
				fmt.Errorf("%w: %d nodes", ErrStepLimitExceeded,
					e.config.StepLimit))
		}

		if err := e.arbiter.Renew(ctx, lease); err != nil {
			return nil, err
		}

		node, ok := e.graph.Node(current)
		if !ok {
			return e.fail(sessionID, state, current, seq+1,
				fmt.Errorf("%w: %s", ErrUnknownNode, current))
		}

		outcome, err := e.executeNode(ctx, node, state)
		if err != nil {
			if IsFatal(err) {
				return e.fail(sessionID, state, current, seq+1, err)
			}
			// recoverable: the checkpoint log is untouched and resume
			// re-attempts this node
			slog.Warn("Node execution failed",
				log.SessionID(sessionID),
				log.NodeID(current),
				log.Error(err))
			return nil, fmt.Errorf("%w: %s: %w",
				ErrNodeExecutionFailed, current, err)
		}

		state = state.Merge(outcome.Delta, e.graph.Policies())
		seq++

		if outcome.Interrupt {
			if outcome.Prompt != "" {
				state = state.Merge(
					api.AssistantMessage(outcome.Prompt),
					e.graph.Policies(),
				)
			}
			return e.interrupt(sessionID, state, current, seq)
		}

		if e.graph.IsTerminal(current) {
			return e.complete(sessionID, state, current, seq)
		}

		next, err := e.resolveNext(current, outcome, state)
		if err != nil {
			return e.fail(sessionID, state, current, seq, err)
		}

		if err := e.commit(&api.Checkpoint{
			SessionID: sessionID,
			Seq:       seq,
			State:     state,
			Next:      next,
			Status:    api.CheckpointRunning,
			CreatedAt: e.clock(),
		}); err != nil {
			return nil, err
		}

		slog.Debug("Node completed",
			log.SessionID(sessionID),
			log.NodeID(current),
			log.Seq(seq))
		current = next
	}
}

func (e *Engine) complete(
	sessionID api.SessionID, state api.State, node api.NodeID, seq int64,
) (*api.Result, error) {
	cp := &api.Checkpoint{
		SessionID: sessionID,
		Seq:       seq,
		State:     state,
		Next:      node,
		Status:    api.CheckpointCompleted,
		CreatedAt: e.clock(),
	}
	if err := e.commit(cp); err != nil {
		return nil, err
	}

	res := cp.ToResult()
	e.saveRecord(res)

	slog.Info("Session completed",
		log.SessionID(sessionID),
		log.NodeID(node),
		log.Status(cp.Status),
		log.Seq(seq))
	return res, nil
}

// interrupt persists a resumable checkpoint and hands control back to the
// caller. The lease is released by the deferred handler, so the session can
// be resumed by any executor once outside input arrives
func (e *Engine) interrupt(
	sessionID api.SessionID, state api.State, node api.NodeID, seq int64,
) (*api.Result, error) {
	cp := &api.Checkpoint{
		SessionID: sessionID,
		Seq:       seq,
		State:     state,
		Next:      node,
		Status:    api.CheckpointInterrupted,
		CreatedAt: e.clock(),
	}
	if err := e.commit(cp); err != nil {
		return nil, err
	}

	slog.Info("Session interrupted",
		log.SessionID(sessionID),
		log.NodeID(node),
		log.Seq(seq))
	return cp.ToResult(), nil
}

// fail persists a failed checkpoint carrying the diagnostic state before
// propagating a fatal error, so an operator can inspect and manually resume
// or abandon the session
func (e *Engine) fail(
	sessionID api.SessionID, state api.State, node api.NodeID, seq int64,
	cause error,
) (*api.Result, error) {
	cp := &api.Checkpoint{
		SessionID: sessionID,
		Seq:       seq,
		State:     state,
		Next:      node,
		Status:    api.CheckpointFailed,
		Error:     cause.Error(),
		CreatedAt: e.clock(),
	}
	if err := e.commit(cp); err != nil {
		slog.Error("Failed to persist failure checkpoint",
			log.SessionID(sessionID),
			log.Error(err))
	}

	slog.Error("Session failed",
		log.SessionID(sessionID),
		log.NodeID(node),
		log.Seq(seq),
		log.Error(cause))
	return cp.ToResult(), cause
}

// commit appends a checkpoint and publishes it to event subscribers. The
// write uses its own deadline so a cancelled caller context cannot tear the
// log mid-step
func (e *Engine) commit(cp *api.Checkpoint) error {
	ctx, cancel := context.WithTimeout(
		context.Background(), commitTimeout,
	)
	defer cancel()

	if err := e.checkpoints.Append(ctx, cp); err != nil {
		return err
	}
	if e.hub != nil {
		e.hub.Publish(cp)
	}
	return nil
}

func (e *Engine) saveRecord(res *api.Result) {
	if e.records == nil {
		return
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), commitTimeout,
	)
	defer cancel()

	rec := records.FromResult(res, e.clock())
	if err := e.records.Save(ctx, rec); err != nil {
		slog.Warn("Failed to save conversation record",
			log.SessionID(res.SessionID),
			log.Error(err))
	}
}

func (e *Engine) releaseLease(lease *arbiter.Lease) {
	ctx, cancel := context.WithTimeout(
		context.Background(), commitTimeout,
	)
	defer cancel()

	if err := e.arbiter.Release(ctx, lease); err != nil {
		slog.Warn("Failed to release session lease",
			log.SessionID(lease.SessionID),
			log.Error(err))
	}
}
