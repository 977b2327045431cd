package api

import "time"

type (
	// CheckpointStatus tags where a session's execution stood when the
	// checkpoint was written
	CheckpointStatus string

	// Checkpoint is an immutable snapshot of a session's execution, written
	// after every node completes. Checkpoints for a session form a totally
	// ordered, append-only log; the engine only ever reads the latest one to
	// resume
	Checkpoint struct {
		CreatedAt time.Time        `json:"created_at"`
		State     State            `json:"state"`
		SessionID SessionID        `json:"session_id"`
		Next      NodeID           `json:"next"`
		Status    CheckpointStatus `json:"status"`
		Error     string           `json:"error,omitempty"`
		Seq       int64            `json:"seq"`
	}

	// ResultStatus is the caller-visible outcome of a run or resume
	ResultStatus string

	// Result is returned to callers when a run terminates, interrupts, or
	// fails. Node identifies the terminal or interrupting node
	Result struct {
		State     State        `json:"state"`
		SessionID SessionID    `json:"session_id"`
		Node      NodeID       `json:"node"`
		Status    ResultStatus `json:"status"`
		Error     string       `json:"error,omitempty"`
		Seq       int64        `json:"seq"`
	}
)

const (
	CheckpointRunning     CheckpointStatus = "running"
	CheckpointInterrupted CheckpointStatus = "interrupted"
	CheckpointCompleted   CheckpointStatus = "completed"
	CheckpointFailed      CheckpointStatus = "failed"
)

const (
	ResultCompleted   ResultStatus = "completed"
	ResultInterrupted ResultStatus = "interrupted"
	ResultFailed      ResultStatus = "failed"
)

// IsTerminal returns true once the session can make no further progress
// without operator intervention
func (s CheckpointStatus) IsTerminal() bool {
	return s == CheckpointCompleted
}

// IsResumable returns true when a session can re-enter execution from this
// checkpoint
func (s CheckpointStatus) IsResumable() bool {
	return s == CheckpointRunning ||
		s == CheckpointInterrupted ||
		s == CheckpointFailed
}

// ToResult projects a checkpoint into the caller-visible result form
func (c *Checkpoint) ToResult() *Result {
	return &Result{
		SessionID: c.SessionID,
		Status:    resultStatuses[c.Status],
		Node:      c.Next,
		State:     c.State,
		Error:     c.Error,
		Seq:       c.Seq,
	}
}

var resultStatuses = map[CheckpointStatus]ResultStatus{
	CheckpointRunning:     ResultInterrupted,
	CheckpointInterrupted: ResultInterrupted,
	CheckpointCompleted:   ResultCompleted,
	CheckpointFailed:      ResultFailed,
}
