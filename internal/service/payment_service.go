package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/gateway"
	"github.com/fjod/farmstand/internal/pricing"
	"github.com/fjod/farmstand/internal/repository"
	"github.com/shopspring/decimal"
)

type ReceiptVerifier interface {
	Verify(r gateway.Receipt) bool
}

type CartInvalidator interface {
	Invalidate(sessionID string)
}

type InitializeRequest struct {
	OrderID  int64
	Amount   *decimal.Decimal
	Currency string
	Actor    Actor
}

// PaymentIntent is what the client needs to open the gateway widget.
type PaymentIntent struct {
	OrderID        int64           `json:"order_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	AmountMinor    int64           `json:"amount_minor"`
	Currency       string          `json:"currency"`
	ClientKey      string          `json:"client_key"`
}

type VerifyRequest struct {
	Receipt  gateway.Receipt
	Amount   *decimal.Decimal
	Currency string
}

// PaymentService runs the two-phase gateway exchange. Between the phases the
// only state is the order row.
type PaymentService struct {
	orders   repository.OrderRepository
	gateway  gateway.Client
	verifier ReceiptVerifier
	carts    CartInvalidator
	now      func() time.Time
}

func NewPaymentService(orders repository.OrderRepository, gw gateway.Client,
	verifier ReceiptVerifier, carts CartInvalidator) *PaymentService {
	return &PaymentService{
		orders:   orders,
		gateway:  gw,
		verifier: verifier,
		carts:    carts,
		now:      time.Now,
	}
}

// Initialize creates a gateway order for the order total. The order stays
// pending_payment whatever happens here.
func (s *PaymentService) Initialize(ctx context.Context, req InitializeRequest) (*PaymentIntent, error) {
	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !req.Actor.CanAccess(order) {
		return nil, domain.ErrForbidden
	}
	if err := order.CanInitializePayment(); err != nil {
		return nil, err
	}
	if err := matchAmount(order, req.Amount, req.Currency); err != nil {
		return nil, err
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   pricing.ToMinorUnits(order.Total),
		Currency: order.Currency,
		Receipt:  "order_" + strconv.FormatInt(order.ID, 10),
		Notes:    map[string]string{"order_id": strconv.FormatInt(order.ID, 10)},
	})
	if err != nil {
		slog.ErrorContext(ctx, "gateway order creation failed", "order_id", order.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrPaymentInit, err)
	}

	if err := s.orders.SetGatewayOrder(ctx, order.ID, gwOrder.ID); err != nil {
		if errors.Is(err, repository.ErrStaleOrder) {
			return nil, s.currentStateError(ctx, order.ID)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "payment initialized", "order_id", order.ID, "gateway_order_id", gwOrder.ID)
	return &PaymentIntent{
		OrderID:        order.ID,
		GatewayOrderID: gwOrder.ID,
		Amount:         order.Total,
		AmountMinor:    pricing.ToMinorUnits(order.Total),
		Currency:       order.Currency,
		ClientKey:      s.gateway.KeyID(),
	}, nil
}

// Verify checks the receipt signature and, on a match, confirms the order,
// stores the payment and clears the session cart in one transaction.
// Replaying an accepted receipt yields ErrAlreadyVerified and changes nothing.
func (s *PaymentService) Verify(ctx context.Context, req VerifyRequest) (*domain.Order, error) {
	r := req.Receipt
	if !s.verifier.Verify(r) {
		slog.WarnContext(ctx, "payment signature mismatch, possible tampering",
			"gateway_order_id", r.GatewayOrderID, "gateway_payment_id", r.GatewayPaymentID)
		return nil, domain.ErrSignatureInvalid
	}

	order, err := s.orders.GetOrderByGatewayOrderID(ctx, r.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if err := matchAmount(order, req.Amount, req.Currency); err != nil {
		return nil, err
	}

	info := domain.PaymentInfo{
		GatewayOrderID:   r.GatewayOrderID,
		GatewayPaymentID: r.GatewayPaymentID,
		Signature:        r.Signature,
	}
	for attempt := 0; ; attempt++ {
		next := order.Clone()
		if err := next.ConfirmPayment(info, s.now()); err != nil {
			return nil, err
		}
		err = s.orders.UpdateOrder(ctx, next, order.Status, repository.UpdateOptions{
			ClearCart: true,
			EventType: domain.EventOrderConfirmed,
		})
		if err == nil {
			s.carts.Invalidate(next.SessionID)
			slog.InfoContext(ctx, "payment verified", "order_id", next.ID,
				"gateway_order_id", r.GatewayOrderID, "gateway_payment_id", r.GatewayPaymentID)
			return next, nil
		}
		if !errors.Is(err, repository.ErrStaleOrder) || attempt > 0 {
			return nil, err
		}
		// lost a race; the reloaded order decides the outcome
		if order, err = s.orders.GetOrderByGatewayOrderID(ctx, r.GatewayOrderID); err != nil {
			return nil, err
		}
	}
}

func (s *PaymentService) currentStateError(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := order.CanInitializePayment(); err != nil {
		return err
	}
	return repository.ErrStaleOrder
}

// matchAmount rejects client-supplied amounts that disagree with the order.
// Omitted values are not checked.
func matchAmount(order *domain.Order, amount *decimal.Decimal, currency string) error {
	if amount != nil && !amount.Equal(order.Total) {
		return domain.ErrAmountMismatch
	}
	if currency != "" && !strings.EqualFold(currency, order.Currency) {
		return domain.ErrAmountMismatch
	}
	return nil
}
