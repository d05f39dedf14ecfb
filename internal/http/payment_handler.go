package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/gateway"
	"github.com/fjod/farmstand/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type PaymentService interface {
	Initialize(ctx context.Context, req service.InitializeRequest) (*service.PaymentIntent, error)
	Verify(ctx context.Context, req service.VerifyRequest) (*domain.Order, error)
}

// SandboxPayer completes a payment without a real widget.
type SandboxPayer interface {
	Pay(gatewayOrderID string) (*gateway.Receipt, error)
}

type PaymentHandler struct {
	payments PaymentService
	sandbox  SandboxPayer
	timeout  time.Duration
}

// NewPaymentHandler wires the payment routes. sandbox may be nil.
func NewPaymentHandler(payments PaymentService, sandbox SandboxPayer, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{payments: payments, sandbox: sandbox, timeout: timeout}
}

type InitializePaymentRequestDTO struct {
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency" validate:"omitempty,len=3"`
}

type VerifyPaymentRequestDTO struct {
	GatewayOrderID   string           `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string           `json:"gateway_payment_id" validate:"required"`
	Signature        string           `json:"signature" validate:"required"`
	Amount           *decimal.Decimal `json:"amount"`
	Currency         string           `json:"currency" validate:"omitempty,len=3"`
}

// POST /api/v1/orders/{id}/payment
func (h *PaymentHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req InitializePaymentRequestDTO
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}
	}

	intent, err := h.payments.Initialize(ctx, service.InitializeRequest{
		OrderID:  orderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Actor:    getActor(r.Context()),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, intent)
}

// POST /api/v1/payments/verify
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req VerifyPaymentRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	order, err := h.payments.Verify(ctx, service.VerifyRequest{
		Receipt: gateway.Receipt{
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        req.Signature,
		},
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/payments/sandbox/{gateway_order_id}/pay
func (h *PaymentHandler) SandboxPay(w http.ResponseWriter, r *http.Request) {
	if h.sandbox == nil {
		respondError(w, http.StatusNotFound, "not_found", "sandbox gateway is disabled")
		return
	}
	receipt, err := h.sandbox.Pay(chi.URLParam(r, "gateway_order_id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}
