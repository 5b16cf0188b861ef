// Package domain holds the cart line and snapshot types shared by every part
// of the cart synchronization engine, together with the invariants they obey.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/EcommerceGo/pkg/validator"
)

// Key identifies a product variant. No two lines in a snapshot share a key.
type Key struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

func (k Key) String() string {
	return k.ProductID + "/" + k.Size + "/" + k.Color
}

// Line is one product variant in the cart. Prices are in minor currency units.
type Line struct {
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Image     string `json:"image,omitempty"`
	Price     int64  `json:"price" validate:"gte=0"`
	SalePrice *int64 `json:"sale_price,omitempty" validate:"omitempty,gte=0"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Stock     int    `json:"stock" validate:"gte=0"`
}

// Key returns the variant key of the line.
func (l Line) Key() Key {
	return Key{ProductID: l.ProductID, Size: l.Size, Color: l.Color}
}

// UnitPrice is the sale price when it is set and lower than the base price.
func (l Line) UnitPrice() int64 {
	if l.SalePrice != nil && *l.SalePrice < l.Price {
		return *l.SalePrice
	}
	return l.Price
}

// Total is quantity times the effective unit price.
func (l Line) Total() int64 {
	return int64(l.Quantity) * l.UnitPrice()
}

// Purchasable reports whether the last known stock allows checkout.
func (l Line) Purchasable() bool {
	return l.Stock > 0
}

// Validate checks the structural requirements of a line. Quantity is not
// clamped here; see Clamp.
func (l Line) Validate() error {
	if err := validator.Validate(l); err != nil {
		return fmt.Errorf("line %s: %w", l.Key(), err)
	}
	return nil
}

// Clone returns a deep copy of the line.
func (l Line) Clone() Line {
	if l.SalePrice != nil {
		sp := *l.SalePrice
		l.SalePrice = &sp
	}
	return l
}

// NewLineID derives a line id from the variant key plus a random token so two
// additions of the same variant never collide before they are combined.
func NewLineID(k Key) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s:%s:%s:%s", k.ProductID, k.Size, k.Color, token)
}

// Cart limits. The cart service enforces the same values, so a snapshot
// the engine accepts is one the service will store unchanged.
const (
	// MaxLineQuantity caps a line whatever its stock.
	MaxLineQuantity = 100
	// MaxLines caps the number of distinct variants in a cart.
	MaxLines = 50
)

// MaxQuantity is the upper clamp for a line: its stock, never below 1 and
// never above MaxLineQuantity.
func MaxQuantity(stock int) int {
	return min(max(stock, 1), MaxLineQuantity)
}

// Clamp bounds quantity to [1, MaxQuantity(stock)].
func Clamp(quantity, stock int) int {
	if quantity < 1 {
		return 1
	}
	if limit := MaxQuantity(stock); quantity > limit {
		return limit
	}
	return quantity
}

// PreferStock picks the stock figure to trust when two observations of the
// same variant disagree: primary when it is known (non-zero), else secondary.
func PreferStock(primary, secondary int) int {
	if primary > 0 {
		return primary
	}
	return secondary
}

// Int64 returns a pointer to v, for building optional sale prices.
func Int64(v int64) *int64 {
	return &v
}
