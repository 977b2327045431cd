// Package engine is the flow execution core: it loads the latest checkpoint
// for a session (or initializes one), advances the graph one node at a time,
// commits a checkpoint after every step, and arbitrates concurrent
// executions through session leases. Within a session execution is strictly
// sequential; across sessions the engine runs with arbitrary parallelism,
// coordinating only through the checkpoint store and the arbiter, so
// instances scale horizontally across processes.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/engine/internal/arbiter"
	"github.com/convoflow/engine/internal/checkpoint"
	"github.com/convoflow/engine/internal/config"
	"github.com/convoflow/engine/internal/events"
	"github.com/convoflow/engine/internal/model"
	"github.com/convoflow/engine/internal/records"
	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/graph"
)

type (
	// Engine executes flow graphs against per-session checkpoint logs
	Engine struct {
		graph       *graph.Graph
		checkpoints checkpoint.Store
		arbiter     *arbiter.Arbiter
		model       model.Client
		records     *records.Store
		hub         *events.Hub
		config      *config.Config
		clock       func() time.Time
		executorID  string
	}

	// Dependencies carries the engine's collaborators. Records and Hub are
	// optional; everything else is required
	Dependencies struct {
		Graph       *graph.Graph
		Checkpoints checkpoint.Store
		Arbiter     *arbiter.Arbiter
		Model       model.Client
		Records     *records.Store
		Hub         *events.Hub
	}
)

var (
	// ErrNodeExecutionFailed wraps a recoverable node failure. No checkpoint
	// was committed for the step; resume re-attempts the same node
	ErrNodeExecutionFailed = errors.New("node execution failed")

	// ErrStepLimitExceeded is a fatal abort after the per-run step budget
	// is exhausted; it is never retried automatically
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrNoRouteMatched is fatal: no outgoing edge guard was satisfied, or
	// a router picked an undeclared candidate. It indicates a malformed
	// graph or unreachable state
	ErrNoRouteMatched = errors.New("no route matched")

	// ErrNodeContractViolation is fatal: a pure node panicked or produced
	// an outcome it must not produce
	ErrNodeContractViolation = errors.New("node contract violation")

	// ErrUnknownNode is fatal: execution was directed at a node the graph
	// does not define
	ErrUnknownNode = errors.New("unknown node")

	// ErrNothingToResume is returned when resume is called for a session
	// that was never run
	ErrNothingToResume = errors.New("no checkpoint to resume")

	ErrMissingDependency = errors.New("missing engine dependency")
)

// New creates a flow engine with a unique executor identity
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	switch {
	case deps.Graph == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("graph"))
	case deps.Checkpoints == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("checkpoints"))
	case deps.Arbiter == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("arbiter"))
	case deps.Model == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("model"))
	}

	return &Engine{
		graph:       deps.Graph,
		checkpoints: deps.Checkpoints,
		arbiter:     deps.Arbiter,
		model:       deps.Model,
		records:     deps.Records,
		hub:         deps.Hub,
		config:      cfg,
		clock:       time.Now,
		executorID:  uuid.New().String(),
	}, nil
}

// ExecutorID returns this engine instance's lease identity
func (e *Engine) ExecutorID() string {
	return e.executorID
}

// Session returns the latest checkpoint for a session, or nil when the
// session has never run
func (e *Engine) Session(
	ctx context.Context, sessionID api.SessionID,
) (*api.Checkpoint, error) {
	return e.checkpoints.Latest(ctx, sessionID)
}

// Record returns the durable conversation record for a completed session
func (e *Engine) Record(
	ctx context.Context, sessionID api.SessionID,
) (*records.Record, error) {
	if e.records == nil {
		return nil, records.ErrRecordNotFound
	}
	return e.records.Get(ctx, string(sessionID))
}

// IsFatal reports whether an execution error indicates a defect in the
// graph or a node rather than a transient failure. Fatal errors persist a
// failed checkpoint before propagating; recoverable ones never touch the
// checkpoint log
func IsFatal(err error) bool {
	return errors.Is(err, ErrStepLimitExceeded) ||
		errors.Is(err, ErrNoRouteMatched) ||
		errors.Is(err, ErrNodeContractViolation) ||
		errors.Is(err, ErrUnknownNode)
}
