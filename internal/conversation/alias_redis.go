package conversation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisAliasStore persists contact → conversation-key aliases in Redis. The
// keys carry no TTL: identity must outlive any snapshot cache entry.
type RedisAliasStore struct {
	redis *redis.Client
}

// NewRedisAliasStore creates an alias store around the provided client.
func NewRedisAliasStore(client *redis.Client) *RedisAliasStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisAliasStore{redis: client}
}

var _ AliasStore = (*RedisAliasStore)(nil)

func (s *RedisAliasStore) LinkContact(ctx context.Context, contactID, key string) error {
	if err := s.redis.Set(ctx, aliasKey(contactID), key, 0).Err(); err != nil {
		return fmt.Errorf("conversation: failed to persist contact alias: %w", err)
	}
	return nil
}

func (s *RedisAliasStore) KeyForContact(ctx context.Context, contactID string) (string, error) {
	val, err := s.redis.Get(ctx, aliasKey(contactID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("conversation: failed to load contact alias: %w", err)
	}
	return val, nil
}

func aliasKey(contactID string) string {
	return fmt.Sprintf("alias:contact:%s", contactID)
}
