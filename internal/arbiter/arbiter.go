// Package arbiter grants at most one live execution lease per session. A
// lease is an ephemeral Redis key acquired with compare-and-set semantics,
// renewed while its holder runs, released on completion, and reclaimed by
// expiry if the holder crashes. This is the mechanism preventing two
// concurrent run or resume calls for the same session from interleaving
// checkpoint writes.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/convoflow/engine/pkg/api"
)

type (
	// Lease is a time-bounded exclusivity token over a session's execution.
	// Token is unique per acquisition, so a holder whose lease expired and
	// was reclaimed cannot renew or release the reclaimer's lease, even when
	// both belong to the same owner
	Lease struct {
		SessionID api.SessionID
		Owner     string
		Token     string
		TTL       time.Duration
	}

	// Arbiter coordinates session leases through Redis
	Arbiter struct {
		client *redis.Client
		prefix string
	}
)

var (
	// ErrSessionBusy indicates another live execution holds the session
	ErrSessionBusy = errors.New("session busy")

	// ErrLeaseLost indicates the caller no longer owns the lease, either
	// because it expired or another executor reclaimed it
	ErrLeaseLost = errors.New("session lease lost")

	ErrArbiterUnavailable = errors.New("session arbiter unavailable")
)

// renewScript extends the lease only while the caller still owns it
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only while the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// New creates a session arbiter over an existing Redis client
func New(client *redis.Client, prefix string) *Arbiter {
	return &Arbiter{
		client: client,
		prefix: prefix,
	}
}

// Acquire claims exclusive ownership of a session for the given executor.
// Returns ErrSessionBusy while another unexpired lease is held; expired
// leases are reclaimable by any executor
func (a *Arbiter) Acquire(
	ctx context.Context, sessionID api.SessionID, owner string,
	ttl time.Duration,
) (*Lease, error) {
	token := uuid.NewString()
	ok, err := a.client.SetNX(ctx, a.key(sessionID), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArbiterUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	return &Lease{
		SessionID: sessionID,
		Owner:     owner,
		Token:     token,
		TTL:       ttl,
	}, nil
}

// Renew extends a held lease by its TTL. Returns ErrLeaseLost if the lease
// expired or was reclaimed
func (a *Arbiter) Renew(ctx context.Context, lease *Lease) error {
	ok, err := renewScript.Run(ctx, a.client,
		[]string{a.key(lease.SessionID)},
		lease.Token, lease.TTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArbiterUnavailable, err)
	}
	if ok != 1 {
		return fmt.Errorf("%w: %s", ErrLeaseLost, lease.SessionID)
	}
	return nil
}

// Release relinquishes a held lease. Releasing a lease that already expired
// is not an error
func (a *Arbiter) Release(ctx context.Context, lease *Lease) error {
	err := releaseScript.Run(ctx, a.client,
		[]string{a.key(lease.SessionID)},
		lease.Token,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %w", ErrArbiterUnavailable, err)
	}
	return nil
}

func (a *Arbiter) key(sessionID api.SessionID) string {
	return fmt.Sprintf("%s:lease:%s", a.prefix, sessionID)
}
