package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session state in Redis under <prefix>:<sessionID>:<key>.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, sessionID, key)
}

func (s *RedisStore) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	if err := checkID(sessionID); err != nil {
		return nil, false, err
	}

	val, err := s.client.Get(ctx, s.key(sessionID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session get: %w", err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, sessionID, key string, value []byte, ttl time.Duration) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(sessionID, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID, key string) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(sessionID, key)).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// Ping checks connectivity to the backing server.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
