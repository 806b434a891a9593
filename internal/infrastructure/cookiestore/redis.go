package cookiestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Conte777/douyin-gateway/internal/domain/qrauth/deps"
)

// RedisStore keeps the credential under a single Redis key so several
// gateway instances share it
type RedisStore struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

var _ deps.CookieStore = (*RedisStore)(nil)

// NewRedisStore creates a store using client
func NewRedisStore(client *redis.Client, key string, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		logger: logger.With().Str("component", "redis_cookie_store").Logger(),
	}
}

// Save stores the credential without expiry
func (s *RedisStore) Save(ctx context.Context, credential string) error {
	if err := s.client.Set(ctx, s.key, credential, 0).Err(); err != nil {
		return fmt.Errorf("failed to save cookie to redis: %w", err)
	}

	s.logger.Info().Str("key", s.key).Int("length", len(credential)).Msg("cookie saved")
	return nil
}

// Load returns the stored credential. A missing key is not an error.
func (s *RedisStore) Load(ctx context.Context) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load cookie from redis: %w", err)
	}
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
