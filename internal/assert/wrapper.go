package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/convoflow/engine/internal/config"
	"github.com/convoflow/engine/pkg/api"
)

// Wrapper wraps testify assertions with flow-engine helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 100 * time.Millisecond

// New creates a new test assertion wrapper
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
	}
}

// ResultStatus asserts the caller-visible status of a run result
func (w *Wrapper) ResultStatus(res *api.Result, expected api.ResultStatus) {
	w.Helper()
	w.NotNil(res)
	if res != nil {
		w.Equal(expected, res.Status)
	}
}

// CheckpointStatus asserts the status recorded on a checkpoint
func (w *Wrapper) CheckpointStatus(
	cp *api.Checkpoint, expected api.CheckpointStatus,
) {
	w.Helper()
	w.NotNil(cp)
	if cp != nil {
		w.Equal(expected, cp.Status)
	}
}

// StateEquals asserts that a state field carries the expected value
func (w *Wrapper) StateEquals(state api.State, key api.Name, expected any) {
	w.Helper()
	val, ok := state[key]
	w.True(ok, "state should have field: %s", key)
	w.Equal(expected, val)
}

// StateMissing asserts that a state field is absent
func (w *Wrapper) StateMissing(state api.State, key api.Name) {
	w.Helper()
	_, ok := state[key]
	w.False(ok, "state should not have field: %s", key)
}

// LastMessage asserts the content of the newest history entry for a role
func (w *Wrapper) LastMessage(state api.State, role, content string) {
	w.Helper()
	msg, ok := state.LastMessage(role)
	w.True(ok, "state should have a %s message", role)
	if ok {
		w.Equal(content, msg.Content)
	}
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= config.MaxTCPPort)
	w.True(cfg.StepLimit > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
