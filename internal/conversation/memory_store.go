package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemorySnapshotStore is a SnapshotStore backed by a mutex-guarded map. It is
// used in tests and single-process development deployments.
type MemorySnapshotStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	version int64
}

// NewMemorySnapshotStore creates an empty in-memory store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{entries: make(map[string]memoryEntry)}
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

// Load returns a deep copy of the stored snapshot and its version.
func (s *MemorySnapshotStore) Load(ctx context.Context, key string) (*Snapshot, int64, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return nil, 0, ErrSnapshotNotFound
	}

	var snap Snapshot
	if err := json.Unmarshal(entry.data, &snap); err != nil {
		return nil, 0, fmt.Errorf("conversation: failed to decode snapshot: %w", err)
	}
	if err := migrateSnapshot(&snap); err != nil {
		return nil, 0, err
	}
	return &snap, entry.version, nil
}

// Store commits the snapshot if the stored version still matches.
func (s *MemorySnapshotStore) Store(ctx context.Context, key string, snapshot *Snapshot, expectedVersion int64) error {
	if snapshot == nil {
		return fmt.Errorf("conversation: snapshot cannot be nil")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("conversation: failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	switch {
	case expectedVersion == 0 && exists:
		return ErrVersionConflict
	case expectedVersion != 0 && (!exists || entry.version != expectedVersion):
		return ErrVersionConflict
	}

	s.entries[key] = memoryEntry{data: data, version: expectedVersion + 1}
	return nil
}
