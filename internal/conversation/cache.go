package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// DefaultSnapshotCacheTTL bounds how long a cached snapshot may serve reads.
const DefaultSnapshotCacheTTL = 24 * time.Hour

type cachedEntry struct {
	Snapshot *Snapshot `json:"snapshot"`
	Version  int64     `json:"version"`
}

// CachedSnapshotStore fronts a SnapshotStore with a Redis read-through cache.
// The cache is advisory: every write goes to the inner store, and a version
// conflict invalidates the cached entry so the retry reloads fresh state.
type CachedSnapshotStore struct {
	inner  SnapshotStore
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
	tracer trace.Tracer
}

// NewCachedSnapshotStore wraps inner with a Redis cache.
func NewCachedSnapshotStore(inner SnapshotStore, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedSnapshotStore {
	if inner == nil {
		panic("conversation: inner store cannot be nil")
	}
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedSnapshotStore{
		inner:  inner,
		redis:  client,
		ttl:    ttl,
		logger: logger,
		tracer: otel.Tracer("leadagent.internal.conversation.snapshot_cache"),
	}
}

var _ SnapshotStore = (*CachedSnapshotStore)(nil)

func (s *CachedSnapshotStore) Load(ctx context.Context, key string) (*Snapshot, int64, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.cache_load")
	defer span.End()

	data, err := s.redis.Get(ctx, snapshotCacheKey(key)).Bytes()
	if err == nil {
		var entry cachedEntry
		if jsonErr := json.Unmarshal(data, &entry); jsonErr == nil && entry.Snapshot != nil {
			if migrateErr := migrateSnapshot(entry.Snapshot); migrateErr == nil {
				return entry.Snapshot, entry.Version, nil
			}
		}
		// Corrupt or stale-schema entry: drop it and fall through.
		_ = s.redis.Del(ctx, snapshotCacheKey(key)).Err()
	} else if err != redis.Nil {
		span.RecordError(err)
		s.logger.Warn("snapshot cache read failed", "key", key, "error", err)
	}

	snap, version, err := s.inner.Load(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	s.populate(ctx, key, snap, version)
	return snap, version, nil
}

func (s *CachedSnapshotStore) Store(ctx context.Context, key string, snapshot *Snapshot, expectedVersion int64) error {
	ctx, span := s.tracer.Start(ctx, "conversation.cache_store")
	defer span.End()

	err := s.inner.Store(ctx, key, snapshot, expectedVersion)
	if err != nil {
		// A conflict means the cached version is stale; make the retry reload.
		if err == ErrVersionConflict {
			_ = s.redis.Del(ctx, snapshotCacheKey(key)).Err()
		}
		return err
	}

	s.populate(ctx, key, snapshot, expectedVersion+1)
	return nil
}

func (s *CachedSnapshotStore) populate(ctx context.Context, key string, snap *Snapshot, version int64) {
	data, err := json.Marshal(cachedEntry{Snapshot: snap, Version: version})
	if err != nil {
		s.logger.Warn("failed to encode snapshot cache entry", "key", key, "error", err)
		return
	}
	if err := s.redis.Set(ctx, snapshotCacheKey(key), data, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to populate snapshot cache", "key", key, "error", err)
	}
}

func snapshotCacheKey(key string) string {
	return fmt.Sprintf("snapshot:%s", key)
}
