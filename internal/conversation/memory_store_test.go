package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	_, _, err := store.Load(ctx, "conv:session:s-1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	snap := NewSnapshot("conv:session:s-1")
	snap.Score = 3
	require.NoError(t, store.Store(ctx, "conv:session:s-1", snap, 0))

	loaded, version, err := store.Load(ctx, "conv:session:s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, 3, loaded.Score)
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	snap := NewSnapshot("k")
	snap.Facts = Facts{FactName: "Ana"}
	require.NoError(t, store.Store(ctx, "k", snap, 0))

	loaded, _, err := store.Load(ctx, "k")
	require.NoError(t, err)
	loaded.Facts[FactName] = "Bea"

	reloaded, _, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "Ana", reloaded.Facts[FactName])
}

func TestMemoryStoreVersionConflicts(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()
	snap := NewSnapshot("k")

	require.NoError(t, store.Store(ctx, "k", snap, 0))

	// Create-again loses.
	assert.ErrorIs(t, store.Store(ctx, "k", snap, 0), ErrVersionConflict)
	// Stale version loses.
	assert.ErrorIs(t, store.Store(ctx, "k", snap, 7), ErrVersionConflict)
	// Matching version wins and bumps.
	require.NoError(t, store.Store(ctx, "k", snap, 1))

	_, version, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestMemoryStoreConcurrentCreateCommitsExactlyOnce(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	results := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Store(ctx, "k", NewSnapshot("k"), 0)
		}()
	}
	wg.Wait()
	close(results)

	committed, conflicted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			committed++
		case err == ErrVersionConflict:
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, writers-1, conflicted)
}

func TestMemoryStoreMigratesV1Snapshots(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	v1 := NewSnapshot("k")
	v1.SchemaVersion = SchemaVersionV1
	v1.Routing = RoutingState{Current: StageWarm, Attempts: 5, NeedsReroute: true}
	require.NoError(t, store.Store(ctx, "k", v1, 0))

	loaded, _, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, 0, loaded.Routing.Attempts, "v1 predates attempt tracking; counting restarts")
	assert.False(t, loaded.Routing.NeedsReroute)
	assert.Equal(t, StageWarm, loaded.Routing.Next)
}

func TestMemoryStoreRejectsUnknownSchema(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	future := NewSnapshot("k")
	future.SchemaVersion = CurrentSchemaVersion + 1
	require.NoError(t, store.Store(ctx, "k", future, 0))

	_, _, err := store.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
}
