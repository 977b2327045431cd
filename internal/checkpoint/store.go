// Package checkpoint persists the per-session checkpoint log. Checkpoints
// are keyed by (session id, sequence number) with a per-session latest
// pointer; appends are guarded by a compare-and-set script so that two
// writers racing past the session lease surface as a conflict instead of a
// corrupted log.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/convoflow/engine/pkg/api"
)

type (
	// Store is the append/read interface over the checkpoint log. Append is
	// rejected with ErrConflict unless the checkpoint's sequence number is
	// the direct successor of the session's latest; Latest returns nil
	// without error when a session has no checkpoints
	Store interface {
		Append(context.Context, *api.Checkpoint) error
		Latest(context.Context, api.SessionID) (*api.Checkpoint, error)
	}

	// RedisStore implements Store over a Redis backend
	RedisStore struct {
		client *redis.Client
		prefix string
		ttl    time.Duration
	}
)

var (
	// ErrConflict indicates a duplicate or non-successor sequence number for
	// a session: two concurrent writers slipped past the lease. This is an
	// invariant violation, not a retryable condition
	ErrConflict = errors.New("checkpoint sequence conflict")

	ErrEncodeCheckpoint = errors.New("failed to encode checkpoint")
	ErrDecodeCheckpoint = errors.New("failed to decode checkpoint")
	ErrStoreUnavailable = errors.New("checkpoint store unavailable")
)

// appendScript commits a checkpoint only when its sequence number directly
// succeeds the session's latest, keeping the log gapless and append-only
var appendScript = redis.NewScript(`
local latest = tonumber(redis.call('GET', KEYS[1]) or '0')
local seq = tonumber(ARGV[1])
if seq ~= latest + 1 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SET', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

var _ Store = (*RedisStore)(nil)

// New creates a checkpoint store over an existing Redis client. A zero ttl
// disables expiry; otherwise entries expire by the store's own retention
// policy, outside the engine loop
func New(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Append commits a checkpoint to the session's log. The write is atomic:
// either the checkpoint becomes the session's latest or ErrConflict is
// returned and the log is untouched
func (s *RedisStore) Append(ctx context.Context, cp *api.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeCheckpoint, err)
	}

	ok, err := appendScript.Run(ctx, s.client,
		[]string{s.latestKey(cp.SessionID), s.seqKey(cp.SessionID, cp.Seq)},
		cp.Seq, payload, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if ok != 1 {
		return fmt.Errorf("%w: session %s seq %d",
			ErrConflict, cp.SessionID, cp.Seq)
	}
	return nil
}

// Latest returns the most recent checkpoint for a session, or nil when the
// session has never been checkpointed
func (s *RedisStore) Latest(
	ctx context.Context, sessionID api.SessionID,
) (*api.Checkpoint, error) {
	seq, err := s.client.Get(ctx, s.latestKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	payload, err := s.client.Get(ctx, s.seqKey(sessionID, seq)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	var cp api.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeCheckpoint, err)
	}
	return &cp, nil
}

func (s *RedisStore) latestKey(sessionID api.SessionID) string {
	return fmt.Sprintf("%s:chk:%s:latest", s.prefix, sessionID)
}

func (s *RedisStore) seqKey(sessionID api.SessionID, seq int64) string {
	return fmt.Sprintf("%s:chk:%s:%d", s.prefix, sessionID, seq)
}
