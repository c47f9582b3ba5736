package conversation

import (
	"context"
	"errors"
)

var (
	// ErrSnapshotNotFound indicates no snapshot exists for the key yet.
	ErrSnapshotNotFound = errors.New("conversation: snapshot not found")

	// ErrVersionConflict indicates a concurrent writer committed first. The
	// caller must reload, re-merge, and retry.
	ErrVersionConflict = errors.New("conversation: snapshot version conflict")

	// ErrConcurrentUpdate indicates the bounded retry budget was exhausted by
	// repeated version conflicts; the turn failed with no partial commit.
	ErrConcurrentUpdate = errors.New("conversation: concurrent update retries exhausted")

	// ErrUnsupportedSchema indicates a persisted snapshot carries a schema
	// version this build cannot interpret.
	ErrUnsupportedSchema = errors.New("conversation: unsupported snapshot schema")
)

// SnapshotStore persists conversation snapshots with optimistic concurrency.
//
// Load returns the snapshot and the version it was read at. Store commits only
// when the stored version still equals expectedVersion (0 means "must not
// exist yet") and otherwise fails with ErrVersionConflict. This is what gives
// at-most-one-committed-update-per-turn semantics across stateless replicas.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*Snapshot, int64, error)
	Store(ctx context.Context, key string, snapshot *Snapshot, expectedVersion int64) error
}
