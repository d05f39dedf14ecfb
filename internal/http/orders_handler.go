package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/service"
)

type OrderService interface {
	GetOrder(ctx context.Context, actor service.Actor, id int64) (*domain.Order, error)
	ListMyOrders(ctx context.Context, actor service.Actor) ([]*domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error)
	RequestCancellation(ctx context.Context, actor service.Actor, orderID int64, reason string) (*domain.Order, error)
	ProcessCancellation(ctx context.Context, orderID int64, action domain.CancellationAction, adminResponse string) (*domain.Order, error)
	AdvanceFulfillment(ctx context.Context, orderID int64, next domain.OrderStatus) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

type CancellationRequestDTO struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type ProcessCancellationRequestDTO struct {
	Action        string `json:"action" validate:"required"`
	AdminResponse string `json:"admin_response" validate:"max=1000"`
}

type AdvanceStatusRequestDTO struct {
	Status string `json:"status" validate:"required"`
}

type OrderListResponseDTO struct {
	Orders []*domain.Order `json:"orders"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListMyOrders(ctx, getActor(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderListResponseDTO{Orders: orders})
}

// GET /api/v1/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	order, err := h.orders.GetOrder(ctx, getActor(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{id}/cancellation
func (h *OrdersHandler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req CancellationRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	order, err := h.orders.RequestCancellation(ctx, getActor(r.Context()), id, req.Reason)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/admin/orders?status=&limit=
func (h *OrdersHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	orders, err := h.orders.ListOrders(ctx, domain.OrderStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderListResponseDTO{Orders: orders})
}

// POST /api/v1/admin/orders/{id}/cancellation
func (h *OrdersHandler) ProcessCancellation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req ProcessCancellationRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	order, err := h.orders.ProcessCancellation(ctx, id, domain.CancellationAction(req.Action), req.AdminResponse)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/admin/orders/{id}/status
func (h *OrdersHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req AdvanceStatusRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	next := domain.OrderStatus(req.Status)
	if !next.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid_status", "unknown order status")
		return
	}
	order, err := h.orders.AdvanceFulfillment(ctx, id, next)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
