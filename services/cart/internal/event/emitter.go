package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/EcommerceGo/pkg/kafka"
	"github.com/utafrali/EcommerceGo/services/cart/internal/domain"
)

const (
	TopicCartUpdated = "ecommerce.cart.updated"
	TopicCartCleared = "ecommerce.cart.cleared"

	AggregateTypeCart = "cart"
	SourceCartService = "cart-service"
)

// CartUpdatedData is the cart.updated payload: the full cart after a change.
type CartUpdatedData struct {
	UserID      string         `json:"user_id"`
	Items       []CartItemData `json:"items"`
	ItemCount   int            `json:"item_count"`
	TotalAmount int64          `json:"total_amount"`
	Currency    string         `json:"currency"`
	Version     int            `json:"version"`
}

type CartItemData struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type CartClearedData struct {
	UserID string `json:"user_id"`
}

// Broker delivers an event to a topic. *pkgkafka.Producer satisfies it.
type Broker interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Emitter turns cart changes into domain events keyed by user id.
type Emitter struct {
	broker Broker
	logger *slog.Logger
}

func NewEmitter(broker Broker, logger *slog.Logger) *Emitter {
	return &Emitter{broker: broker, logger: logger}
}

func (e *Emitter) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		UserID:      cart.UserID,
		Items:       make([]CartItemData, 0, len(cart.Items)),
		ItemCount:   cart.ItemCount(),
		TotalAmount: cart.TotalAmount(),
		Currency:    cart.Currency,
		Version:     cart.Version,
	}
	for _, it := range cart.Items {
		data.Items = append(data.Items, CartItemData{
			ProductID: it.ProductID,
			Size:      it.Size,
			Color:     it.Color,
			Name:      it.Name,
			UnitPrice: it.UnitPrice(),
			Quantity:  it.Quantity,
		})
	}
	return e.emit(ctx, TopicCartUpdated, cart.UserID, data,
		slog.Int("item_count", data.ItemCount),
		slog.Int("version", data.Version),
	)
}

func (e *Emitter) PublishCartCleared(ctx context.Context, userID string) error {
	return e.emit(ctx, TopicCartCleared, userID, CartClearedData{UserID: userID})
}

func (e *Emitter) emit(ctx context.Context, topic, userID string, data any, attrs ...slog.Attr) error {
	evt, err := pkgkafka.NewEvent(topic, userID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("build %s event: %w", topic, err)
	}
	if err := e.broker.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event for user %s: %w", topic, userID, err)
	}

	attrs = append(attrs, slog.String("topic", topic), slog.String("user_id", userID))
	e.logger.LogAttrs(ctx, slog.LevelDebug, "cart event published", attrs...)
	return nil
}
