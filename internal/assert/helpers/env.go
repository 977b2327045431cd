// Package helpers provides a shared test environment: an engine wired to
// an in-memory Redis backend, a scriptable external-call client, and a few
// canned flow graphs
package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/engine/internal/arbiter"
	"github.com/convoflow/engine/internal/checkpoint"
	"github.com/convoflow/engine/internal/config"
	"github.com/convoflow/engine/internal/engine"
	"github.com/convoflow/engine/internal/events"
	"github.com/convoflow/engine/internal/records"
	"github.com/convoflow/engine/pkg/api"
	"github.com/convoflow/engine/pkg/graph"
	"github.com/convoflow/engine/pkg/log"
)

// TestEngineEnv holds all the components needed for engine testing
type TestEngineEnv struct {
	Engine      *engine.Engine
	Redis       *miniredis.Miniredis
	Client      *redis.Client
	MockModel   *MockModel
	Config      *config.Config
	Graph       *graph.Graph
	Checkpoints checkpoint.Store
	Arbiter     *arbiter.Arbiter
	Records     *records.Store
	Hub         *events.Hub
}

const testRecordsURL = "mem://test-conversations/id"

// quietLogs routes the default logger to a discard sink for the duration
// of the test
func quietLogs(t *testing.T) {
	t.Helper()

	prev := slog.Default()
	slog.SetDefault(log.NewWithWriter(
		io.Discard, "convoflow", "test", "0.0.0", slog.LevelDebug,
	))
	t.Cleanup(func() { slog.SetDefault(prev) })
}

// NewTestConfig creates a default configuration with debug logging and a
// short lease suitable for fast expiry tests
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.LeaseTTL = 2 * time.Second
	cfg.CallTimeout = time.Second
	return cfg
}

// NewTestEngine creates a fully configured test engine environment with an
// in-memory Redis backend, a mock call client, and the given flow graph.
// Cleanup is registered with the test
func NewTestEngine(t *testing.T, g *graph.Graph) *TestEngineEnv {
	t.Helper()

	quietLogs(t)

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := NewTestConfig()
	cfg.Redis.Addr = server.Addr()
	cfg.Redis.Prefix = "test"

	recs, err := records.Open(context.Background(), testRecordsURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = recs.Close() })

	env := &TestEngineEnv{
		Redis:       server,
		Client:      client,
		MockModel:   NewMockModel(),
		Config:      cfg,
		Graph:       g,
		Checkpoints: checkpoint.New(client, cfg.Redis.Prefix, 0),
		Arbiter:     arbiter.New(client, cfg.Redis.Prefix),
		Records:     recs,
		Hub:         events.NewHub(),
	}

	env.Engine = env.NewEngineInstance(t)
	return env
}

// Dependencies returns the environment's collaborators as an engine
// dependency set
func (e *TestEngineEnv) Dependencies() engine.Dependencies {
	return engine.Dependencies{
		Graph:       e.Graph,
		Checkpoints: e.Checkpoints,
		Arbiter:     e.Arbiter,
		Model:       e.MockModel,
		Records:     e.Records,
		Hub:         e.Hub,
	}
}

// NewEngineInstance creates an engine sharing the environment's stores and
// mock client but carrying its own executor identity. Used to simulate a
// second process, or a restart after crash
func (e *TestEngineEnv) NewEngineInstance(t *testing.T) *engine.Engine {
	t.Helper()

	eng, err := engine.New(e.Config, e.Dependencies())
	require.NoError(t, err)
	return eng
}

// LatestSeq reads the session's latest sequence number directly from the
// backend, zero when the session has no checkpoints
func (e *TestEngineEnv) LatestSeq(
	t *testing.T, sessionID api.SessionID,
) int64 {
	t.Helper()

	key := fmt.Sprintf("%s:chk:%s:latest", e.Config.Redis.Prefix, sessionID)
	val, err := e.Client.Get(context.Background(), key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	require.NoError(t, err)
	return val
}

// CheckpointAt reads one checkpoint from the session's log by sequence
// number
func (e *TestEngineEnv) CheckpointAt(
	t *testing.T, sessionID api.SessionID, seq int64,
) *api.Checkpoint {
	t.Helper()

	key := fmt.Sprintf(
		"%s:chk:%s:%d", e.Config.Redis.Prefix, sessionID, seq,
	)
	data, err := e.Client.Get(context.Background(), key).Bytes()
	require.NoError(t, err)

	cp := new(api.Checkpoint)
	require.NoError(t, json.Unmarshal(data, cp))
	return cp
}

// WithTriageEnv runs fn against an environment built on the intent-triage
// graph
func WithTriageEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	g, err := NewTriageGraph()
	require.NoError(t, err)
	fn(NewTestEngine(t, g))
}

// WithInterruptEnv runs fn against an environment built on the
// gather-input graph
func WithInterruptEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	g, err := NewInterruptGraph()
	require.NoError(t, err)
	fn(NewTestEngine(t, g))
}
