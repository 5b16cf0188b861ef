package repository

import (
	"context"

	"github.com/utafrali/EcommerceGo/services/cart/internal/domain"
)

// CartRepository defines the interface for cart persistence operations.
type CartRepository interface {
	// Get retrieves a cart by its user ID.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Save persists a cart to the store, overwriting any existing cart for the user.
	Save(ctx context.Context, cart *domain.Cart) error

	// SaveIfVersion persists cart only when the stored version still equals
	// expected (0 for a cart that does not exist yet). On success cart.Version
	// is advanced to expected+1. It reports false when another writer won.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expected int) (bool, error)

	// Delete removes a cart from the store by the user ID.
	Delete(ctx context.Context, userID string) error

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}
