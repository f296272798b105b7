package confirmations

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeLua deletes KEYS[1] only when it holds ARGV[1].
var consumeLua = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored or stored ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore keeps one key per (user, purpose) with a native TTL.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "innerg:ut"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(userID, purpose string) string {
	return s.prefix + ":" + purpose + ":" + userID
}

func (s *RedisStore) Set(ctx context.Context, userID, purpose, digest string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(userID, purpose), digest, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, userID, purpose, digest string) (bool, error) {
	n, err := consumeLua.Run(ctx, s.redis, []string{s.key(userID, purpose)}, digest).Int()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Invalidate(ctx context.Context, userID, purpose string) error {
	if err := s.redis.Del(ctx, s.key(userID, purpose)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
