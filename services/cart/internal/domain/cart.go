package domain

import (
	"time"

	cartsync "github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
)

// ItemKey identifies a product variant within a cart.
type ItemKey = cartsync.Key

// Cart represents a shopping cart.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	Currency  string     `json:"currency"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// CartItem represents a single item in the cart. Prices are in cents.
type CartItem struct {
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	ImageURL  string `json:"image_url,omitempty"`
	Price     int64  `json:"price"`
	SalePrice *int64 `json:"sale_price,omitempty"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
}

// Key returns the variant key of the item.
func (i CartItem) Key() ItemKey {
	return ItemKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// UnitPrice is the sale price when set and lower than the list price.
func (i CartItem) UnitPrice() int64 {
	if i.SalePrice != nil && *i.SalePrice < i.Price {
		return *i.SalePrice
	}
	return i.Price
}

// TotalAmount calculates the total price of all items in the cart (in cents).
func (c *Cart) TotalAmount() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.UnitPrice() * int64(item.Quantity)
	}
	return total
}

// ItemCount returns the total number of items in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindItemIndex returns the index of the item with the given key, or -1.
func (c *Cart) FindItemIndex(key ItemKey) int {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return i
		}
	}
	return -1
}
