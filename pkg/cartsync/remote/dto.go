package remote

import "github.com/utafrali/EcommerceGo/pkg/cartsync/domain"

// itemDTO is a cart line as the cart service serializes it.
type itemDTO struct {
	LineID    string `json:"line_id,omitempty"`
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

type cartDTO struct {
	UserID string    `json:"user_id"`
	Items  []itemDTO `json:"items"`
}

type cartEnvelope struct {
	Data cartDTO `json:"data"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func toItemDTO(l domain.Line) itemDTO {
	return itemDTO{
		LineID:    l.LineID,
		ProductID: l.ProductID,
		Name:      l.Name,
		Slug:      l.Slug,
		ImageURL:  l.Image,
		Price:     l.Price,
		SalePrice: l.SalePrice,
		Size:      l.Size,
		Color:     l.Color,
		Quantity:  l.Quantity,
		Stock:     l.Stock,
	}
}

func (d itemDTO) line() domain.Line {
	return domain.Line{
		LineID:    d.LineID,
		ProductID: d.ProductID,
		Name:      d.Name,
		Slug:      d.Slug,
		Image:     d.ImageURL,
		Price:     d.Price,
		SalePrice: d.SalePrice,
		Size:      d.Size,
		Color:     d.Color,
		Quantity:  d.Quantity,
		Stock:     d.Stock,
	}
}

func (c cartDTO) snapshot() domain.Snapshot {
	s := make(domain.Snapshot, 0, len(c.Items))
	for _, it := range c.Items {
		s = append(s, it.line())
	}
	return s
}
