package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cartsync "github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/slug"
	"github.com/utafrali/EcommerceGo/services/cart/internal/domain"
	"github.com/utafrali/EcommerceGo/services/cart/internal/repository"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity kept on a single cart item.
	// Larger requests are clamped, matching the device-side engine.
	MaxQuantityPerItem = cartsync.MaxLineQuantity
	// MaxItemsPerCart is the maximum number of distinct items allowed in a cart.
	MaxItemsPerCart = cartsync.MaxLines
	// MaxPriceCents is the maximum price in cents (100,000.00) allowed per item.
	MaxPriceCents = 100_000_00
)

// AddItemInput holds the parameters for adding an item to the cart.
type AddItemInput struct {
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	ImageURL  string `json:"image_url"`
	Price     int64  `json:"price" validate:"gte=0"`
	SalePrice *int64 `json:"sale_price" validate:"omitempty,gte=0"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Stock     int    `json:"stock" validate:"gte=0"`
}

func (in AddItemInput) key() domain.ItemKey {
	return domain.ItemKey{ProductID: in.ProductID, Size: in.Size, Color: in.Color}
}

// UpdateQuantityInput holds the parameters for updating an item quantity.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

// EventPublisher publishes cart domain events.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartCleared(ctx context.Context, userID string) error
}

// CartService implements the business logic for cart operations.
type CartService struct {
	repo     repository.CartRepository
	producer EventPublisher
	logger   *slog.Logger
	cartTTL  time.Duration
}

// NewCartService creates a new cart service.
func NewCartService(repo repository.CartRepository, producer EventPublisher, logger *slog.Logger, cartTTL time.Duration) *CartService {
	return &CartService{
		repo:     repo,
		producer: producer,
		logger:   logger,
		cartTTL:  cartTTL,
	}
}

// GetCart retrieves the cart for a user. If no cart exists, returns an empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	return s.getOrCreateCart(ctx, userID)
}

// AddItem adds an item to the user's cart. An item with the same product, size
// and color absorbs the quantity and takes the new stock and pricing; the
// result is clamped to the stock and to MaxQuantityPerItem. Items that are
// out of stock are rejected.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if input.Price < 0 || input.SalePrice != nil && *input.SalePrice < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}
	if input.Price > MaxPriceCents {
		return nil, apperrors.InvalidInput(fmt.Sprintf("price must not exceed %d cents", MaxPriceCents))
	}
	if input.Stock < 0 {
		return nil, apperrors.InvalidInput("stock must not be negative")
	}
	if input.Stock == 0 {
		return nil, apperrors.OutOfStock(input.ProductID, input.Size, input.Color)
	}

	if input.Slug == "" {
		input.Slug = slug.Generate(input.Name)
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	expectedVersion := cart.Version

	if i := cart.FindItemIndex(input.key()); i >= 0 {
		item := &cart.Items[i]
		item.Name = input.Name
		item.Slug = input.Slug
		item.ImageURL = input.ImageURL
		item.Price = input.Price
		item.SalePrice = input.SalePrice
		item.Stock = input.Stock
		item.Quantity = clampQuantity(item.Quantity+input.Quantity, item.Stock)
	} else {
		if len(cart.Items) >= MaxItemsPerCart {
			return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
		}
		lineID := input.LineID
		if lineID == "" {
			lineID = cartsync.NewLineID(input.key())
		}
		cart.Items = append(cart.Items, domain.CartItem{
			LineID:    lineID,
			ProductID: input.ProductID,
			Name:      input.Name,
			Slug:      input.Slug,
			ImageURL:  input.ImageURL,
			Price:     input.Price,
			SalePrice: input.SalePrice,
			Size:      input.Size,
			Color:     input.Color,
			Quantity:  clampQuantity(input.Quantity, input.Stock),
			Stock:     input.Stock,
		})
	}

	if err := s.save(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", input.ProductID),
		slog.String("size", input.Size),
		slog.String("color", input.Color),
		slog.Int("quantity", input.Quantity),
	)

	return cart, nil
}

// UpdateItemQuantity sets the quantity of an item, clamped to its stock. A
// quantity of 0 removes the item.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID string, key domain.ItemKey, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if key.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart for update: %w", err)
	}
	expectedVersion := cart.Version

	i := cart.FindItemIndex(key)
	if i < 0 {
		return nil, apperrors.NotFound("cart item", key.String())
	}
	if quantity == 0 {
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	} else {
		cart.Items[i].Quantity = clampQuantity(quantity, cart.Items[i].Stock)
	}

	if err := s.save(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("user_id", userID),
		slog.String("item", key.String()),
		slog.Int("quantity", quantity),
	)

	return cart, nil
}

// RemoveItem removes a specific item from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID string, key domain.ItemKey) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if key.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart for remove: %w", err)
	}
	expectedVersion := cart.Version

	i := cart.FindItemIndex(key)
	if i < 0 {
		return nil, apperrors.NotFound("cart item", key.String())
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)

	if err := s.save(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("item", key.String()),
	)

	return cart, nil
}

// ClearCart removes all items from the user's cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	if err := s.producer.PublishCartCleared(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("user_id", userID),
	)

	return nil
}

// Ping checks the cart store.
func (s *CartService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// save refreshes the expiry, writes cart with optimistic locking and
// publishes cart.updated. A publish failure is logged, not returned.
func (s *CartService) save(ctx context.Context, cart *domain.Cart, expectedVersion int) error {
	now := time.Now().UTC()
	cart.UpdatedAt = now
	cart.ExpiresAt = now.Add(s.cartTTL)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return apperrors.Conflict("cart was modified concurrently, please retry")
	}

	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", cart.UserID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// getOrCreateCart retrieves the cart for a user, creating an empty one if it does not exist.
func (s *CartService) getOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// newEmptyCart creates a new empty cart for the given user.
func (s *CartService) newEmptyCart(userID string) *domain.Cart {
	now := time.Now().UTC()
	return &domain.Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		Items:     []domain.CartItem{},
		Currency:  "USD",
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cartTTL),
	}
}

// clampQuantity bounds q to the stock when it is known and to MaxQuantityPerItem.
func clampQuantity(q, stock int) int {
	limit := MaxQuantityPerItem
	if stock > 0 && stock < limit {
		limit = stock
	}
	return min(max(q, 1), limit)
}
