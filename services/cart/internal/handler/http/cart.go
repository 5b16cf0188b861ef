package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/httputil"
	"github.com/utafrali/EcommerceGo/pkg/middleware"
	"github.com/utafrali/EcommerceGo/services/cart/internal/domain"
	"github.com/utafrali/EcommerceGo/services/cart/internal/service"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.service.AddItem(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}?size=&color=
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	key, err := itemKey(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var req service.UpdateQuantityInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.service.UpdateItemQuantity(r.Context(), middleware.UserIDFromContext(r.Context()), key, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}?size=&color=
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key, err := itemKey(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), middleware.UserIDFromContext(r.Context()), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCart(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "cleared"}})
}

// itemKey reads the variant key from the path and the size/color query.
// chi has already unescaped the product id.
func itemKey(r *http.Request) (domain.ItemKey, error) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		return domain.ItemKey{}, apperrors.InvalidInput("productId is required")
	}
	q := r.URL.Query()
	return domain.ItemKey{ProductID: productID, Size: q.Get("size"), Color: q.Get("color")}, nil
}
