// Package records persists durable conversation records to a document
// store once a session completes. The store is opened through a gocloud
// docstore URL, so the backing service is a deployment concern; tests and
// local development use the in-memory driver. The engine treats it as
// opaque long-term memory outside the checkpoint log.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocloud.dev/docstore"
	// the in-memory driver backs the default records URL
	_ "gocloud.dev/docstore/memdocstore"
	"gocloud.dev/gcerrors"

	"github.com/convoflow/engine/pkg/api"
)

type (
	// Record is the durable form of a completed conversation
	Record struct {
		ID          string        `docstore:"id" json:"id"`
		SessionID   api.SessionID `docstore:"session_id" json:"session_id"`
		Node        api.NodeID    `docstore:"node" json:"node"`
		Transcript  []api.Message `docstore:"transcript" json:"transcript"`
		State       api.State     `docstore:"state" json:"state"`
		Steps       int64         `docstore:"steps" json:"steps"`
		CompletedAt time.Time     `docstore:"completed_at" json:"completed_at"`
	}

	// Store reads and writes conversation records by id
	Store struct {
		coll *docstore.Collection
	}
)

var (
	ErrRecordNotFound = errors.New("conversation record not found")
	ErrOpenCollection = errors.New("failed to open record collection")
	ErrSaveRecord     = errors.New("failed to save conversation record")
)

// Open connects to the document store behind the given docstore URL
func Open(ctx context.Context, url string) (*Store, error) {
	coll, err := docstore.OpenCollection(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenCollection, err)
	}
	return &Store{coll: coll}, nil
}

// Close releases the underlying collection
func (s *Store) Close() error {
	return s.coll.Close()
}

// Save upserts a conversation record
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if err := s.coll.Put(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveRecord, err)
	}
	return nil
}

// Get retrieves a conversation record by id
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rec := &Record{ID: id}
	if err := s.coll.Get(ctx, rec); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// FromResult projects a completed run into its durable record. Record ids
// are the session id, so a session's record is updated in place if the
// flow is re-run
func FromResult(res *api.Result, completedAt time.Time) *Record {
	return &Record{
		ID:          string(res.SessionID),
		SessionID:   res.SessionID,
		Node:        res.Node,
		Transcript:  res.State.GetMessages(),
		State:       res.State,
		Steps:       res.Seq,
		CompletedAt: completedAt,
	}
}
