package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

// RedisStore keeps the snapshot of one device or browser session in Redis.
// Server-rendered storefronts use it where there is no device filesystem.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a store for the given device or session id. A zero
// ttl keeps the snapshot forever.
func NewRedisStore(client *redis.Client, deviceID string, ttl time.Duration, l *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    DefaultKey + ":" + deviceID,
		ttl:    ttl,
		logger: logger.OrDefault(l),
	}
}

// Key returns the Redis key holding the snapshot.
func (s *RedisStore) Key() string {
	return s.key
}

// Load reads the snapshot from Redis.
func (s *RedisStore) Load(ctx context.Context) (domain.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("redis get cart snapshot: %w", err)
	}
	return decodeOrEmpty(ctx, s.logger, "redis", data), nil
}

// Save overwrites the snapshot and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart snapshot: %w", err)
	}
	return nil
}
