package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/service"
	"github.com/shopspring/decimal"
)

type CheckoutService interface {
	BuildOrder(ctx context.Context, req service.CheckoutRequest) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, timeout: timeout}
}

type CustomerInfoDTO struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type ShippingAddressDTO struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

type CheckoutRequestDTO struct {
	CustomerInfo    CustomerInfoDTO    `json:"customer_info" validate:"required"`
	ShippingAddress ShippingAddressDTO `json:"shipping_address" validate:"required"`
}

type CheckoutResponseDTO struct {
	OrderID  int64              `json:"order_id"`
	Subtotal decimal.Decimal    `json:"subtotal"`
	Shipping decimal.Decimal    `json:"shipping"`
	Total    decimal.Decimal    `json:"total"`
	Currency string             `json:"currency"`
	Status   domain.OrderStatus `json:"status"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor := getActor(r.Context())
	if actor.SessionID == "" {
		handleServiceError(w, r, domain.ErrSessionRequired)
		return
	}
	var req CheckoutRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	checkoutReq := service.CheckoutRequest{
		SessionID: actor.SessionID,
		Customer: domain.CustomerInfo{
			Name:  req.CustomerInfo.Name,
			Email: req.CustomerInfo.Email,
			Phone: req.CustomerInfo.Phone,
			Address: domain.ShippingAddress{
				Line1:      req.ShippingAddress.Line1,
				Line2:      req.ShippingAddress.Line2,
				City:       req.ShippingAddress.City,
				State:      req.ShippingAddress.State,
				PostalCode: req.ShippingAddress.PostalCode,
				Country:    req.ShippingAddress.Country,
			},
		},
	}
	if actor.Authenticated() {
		uid := actor.UserID
		checkoutReq.UserID = &uid
	}

	order, err := h.checkout.BuildOrder(ctx, checkoutReq)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		OrderID:  order.ID,
		Subtotal: order.Subtotal,
		Shipping: order.Shipping,
		Total:    order.Total,
		Currency: order.Currency,
		Status:   order.Status,
	})
}
