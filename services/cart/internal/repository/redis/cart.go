package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/services/cart/internal/domain"
)

const keyPrefix = "cart:"

// CartRepository implements repository.CartRepository using Redis. Each cart
// is one JSON value under cart:<userID>.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cart by user ID from Redis.
func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := getCart(ctx, r.client, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperrors.NotFound("cart", userID)
	}
	return cart, nil
}

// Save persists a cart to Redis with the configured TTL.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+cart.UserID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

// SaveIfVersion writes cart inside a WATCH/MULTI transaction so that a
// concurrent write between the version check and the SET aborts this one.
func (r *CartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expected int) (bool, error) {
	key := keyPrefix + cart.UserID
	saved := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getCart(ctx, tx, cart.UserID)
		if err != nil {
			return err
		}
		if current != nil && current.Version != expected || current == nil && expected != 0 {
			return nil
		}

		next := *cart
		next.Version = expected + 1
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		saved = true
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis save cart: %w", err)
	}
	if saved {
		cart.Version = expected + 1
	}
	return saved, nil
}

// Delete removes a cart from Redis by user ID.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// getCart returns nil without error when the key does not exist.
func getCart(ctx context.Context, c redis.Cmdable, userID string) (*domain.Cart, error) {
	data, err := c.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &cart, nil
}
