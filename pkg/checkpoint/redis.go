package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces checkpoint keys in Redis.
	KeyPrefix = "wikipurge:checkpoint:"

	// DefaultTTL bounds how long an abandoned checkpoint is kept.
	DefaultTTL = 7 * 24 * time.Hour
)

// entry is the stored JSON value.
type entry struct {
	Cursor  string    `json:"cursor"`
	SavedAt time.Time `json:"saved_at"`
}

// RedisStore keeps checkpoints in Redis.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. ttl <= 0 uses DefaultTTL.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Key returns the Redis key for a checkpoint key.
func Key(key string) string {
	return KeyPrefix + key
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) (string, bool, error) {
	data, err := s.redis.Get(ctx, Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		checkpointErrors.WithLabelValues("load").Inc()
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		checkpointErrors.WithLabelValues("load").Inc()
		return "", false, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return e.Cursor, true, nil
}

// Save implements Store. Every save refreshes the TTL.
func (s *RedisStore) Save(ctx context.Context, key, cursor string) error {
	data, err := json.Marshal(entry{Cursor: cursor, SavedAt: time.Now().UTC()})
	if err != nil {
		checkpointErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, Key(key), data, s.ttl).Err(); err != nil {
		checkpointErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, Key(key)).Err(); err != nil {
		checkpointErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of a checkpoint.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.redis.TTL(ctx, Key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	return ttl, nil
}
