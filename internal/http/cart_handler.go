package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/service"
)

type CartService interface {
	GetCart(ctx context.Context, sessionID string) (*service.CartView, error)
	AddItem(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) (*service.CartView, error)
	SetItemQuantity(ctx context.Context, sessionID string, productID int64, quantity int, expectedVersion int64) (*service.CartView, error)
	RemoveItem(ctx context.Context, sessionID string, productID int64, expectedVersion int64) (*service.CartView, error)
	Clear(ctx context.Context, sessionID string, expectedVersion int64) (*service.CartView, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
}

func NewCartHandler(carts CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{carts: carts, timeout: timeout}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.carts.GetCart(ctx, getActor(r.Context()).SessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, view)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	version, err := ifMatchVersion(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req AddItemRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	view, err := h.carts.AddItem(ctx, getActor(r.Context()).SessionID, req.ProductID, min(req.Quantity, domain.MaxLineQuantity), version)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondCart(w, http.StatusCreated, view)
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := pathID(r, "product_id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	version, err := ifMatchVersion(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req UpdateQuantityRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	view, err := h.carts.SetItemQuantity(ctx, getActor(r.Context()).SessionID, productID, min(req.Quantity, domain.MaxLineQuantity), version)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, view)
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := pathID(r, "product_id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	version, err := ifMatchVersion(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	view, err := h.carts.RemoveItem(ctx, getActor(r.Context()).SessionID, productID, version)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, view)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	version, err := ifMatchVersion(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	view, err := h.carts.Clear(ctx, getActor(r.Context()).SessionID, version)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, view)
}

// ifMatchVersion reads the optional cart version precondition. Zero means
// the write is unconditional.
func ifMatchVersion(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: If-Match must be a cart version", domain.ErrInvalidInput)
	}
	return v, nil
}

func respondCart(w http.ResponseWriter, status int, view *service.CartView) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(view.Version, 10)))
	respondJSON(w, status, view)
}
