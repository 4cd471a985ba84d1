package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session values in redis under oee:session:<session>:<key>.
type RedisStore struct {
	client  *redis.Client
	session string
	ttl     time.Duration
}

// NewRedisStore returns redis-backed store. A zero ttl keeps values forever.
func NewRedisStore(client *redis.Client, session string, ttl time.Duration) *RedisStore {
	if session == "" {
		session = "default"
	}
	return &RedisStore{client: client, session: session, ttl: ttl}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("oee:session:%s:%s", s.session, key)
}

// Get returns the stored value or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selection: redis get: %w", err)
	}
	return data, nil
}

// Set stores value and refreshes the session ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("selection: redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("selection: redis del: %w", err)
	}
	return nil
}
