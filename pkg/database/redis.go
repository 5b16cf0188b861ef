// Package database holds the Redis plumbing shared by the cart service and
// the Redis-backed device store: client construction, command tracing and
// pool metrics.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"0"`

	// SlowThreshold logs commands slower than this; zero disables it.
	SlowThreshold time.Duration `env:"REDIS_SLOW_THRESHOLD" envDefault:"100ms"`
}

// DefaultRedisConfig returns sensible defaults for Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		SlowThreshold: 100 * time.Millisecond,
	}
}

// NewRedisClient creates a traced Redis client and verifies the connection.
// PoolSize 0 keeps the go-redis default.
func NewRedisClient(ctx context.Context, cfg RedisConfig, l *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	client.AddHook(NewTracingHook(cfg.SlowThreshold, l))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
