package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxDB is the subset of pgxpool.Pool used by the store, kept narrow so tests
// can substitute a mock.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSnapshotStore persists conversation snapshots to PostgreSQL for
// bootstrap deployments without DynamoDB. The version column drives the same
// compare-and-store contract as the DynamoDB condition expression.
type PostgresSnapshotStore struct {
	db pgxDB
}

// NewPostgresSnapshotStore builds a Postgres-backed SnapshotStore.
func NewPostgresSnapshotStore(db pgxDB) *PostgresSnapshotStore {
	if db == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PostgresSnapshotStore{db: db}
}

var _ SnapshotStore = (*PostgresSnapshotStore)(nil)

// Load fetches the snapshot and the version it was read at.
func (s *PostgresSnapshotStore) Load(ctx context.Context, key string) (*Snapshot, int64, error) {
	var (
		payload []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT snapshot, version
		FROM conversation_snapshots
		WHERE conversation_key = $1
	`, key).Scan(&payload, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("conversation: failed to fetch snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, 0, fmt.Errorf("conversation: failed to decode snapshot: %w", err)
	}
	if err := migrateSnapshot(&snap); err != nil {
		return nil, 0, err
	}
	return &snap, version, nil
}

// Store commits the snapshot iff the stored version still equals
// expectedVersion; an insert races lose to ON CONFLICT, an update races lose
// to the version guard. Both surface as ErrVersionConflict.
func (s *PostgresSnapshotStore) Store(ctx context.Context, key string, snapshot *Snapshot, expectedVersion int64) error {
	if snapshot == nil {
		return errors.New("conversation: snapshot cannot be nil")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("conversation: failed to encode snapshot: %w", err)
	}

	now := time.Now().UTC()

	if expectedVersion == 0 {
		tag, execErr := s.db.Exec(ctx, `
			INSERT INTO conversation_snapshots (conversation_key, version, snapshot, updated_at)
			VALUES ($1, 1, $2, $3)
			ON CONFLICT (conversation_key) DO NOTHING
		`, key, payload, now)
		if execErr != nil {
			return fmt.Errorf("conversation: failed to persist snapshot: %w", execErr)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		return nil
	}

	tag, execErr := s.db.Exec(ctx, `
		UPDATE conversation_snapshots
		SET snapshot = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE conversation_key = $1 AND version = $4
	`, key, payload, now, expectedVersion)
	if execErr != nil {
		return fmt.Errorf("conversation: failed to persist snapshot: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}
