package instactl

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "instactl:session:"

// RedisSessionStore shares one session between machines. The key is derived
// from session_file so the one-session-per-file rule still holds.
type RedisSessionStore struct {
	client *redis.Client
	key    string
}

// NewRedisSessionStore parses rawURL and keys the blob by sessionFile. It
// connects lazily; the first Load or Save dials.
func NewRedisSessionStore(rawURL, sessionFile string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse session_store: %w", err)
	}
	return &RedisSessionStore{
		client: redis.NewClient(opts),
		key:    redisKeyPrefix + sessionFile,
	}, nil
}

func (s *RedisSessionStore) Location() string {
	return fmt.Sprintf("redis %s/%s", s.client.Options().Addr, s.key)
}

func (s *RedisSessionStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	if len(data) == 0 {
		return nil, ErrNoSession
	}
	return data, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, blob []byte) error {
	if err := s.client.Set(ctx, s.key, blob, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
