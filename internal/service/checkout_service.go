package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/pricing"
	"github.com/fjod/farmstand/internal/repository"
)

type CheckoutRequest struct {
	SessionID string
	UserID    *string
	Customer  domain.CustomerInfo
}

// CheckoutService turns a session cart into a pending_payment order. The cart
// itself is left untouched; it is cleared only once payment verifies.
type CheckoutService struct {
	carts    repository.CartRepository
	orders   repository.OrderRepository
	pricing  *pricing.Engine
	currency string
	now      func() time.Time
}

func NewCheckoutService(carts repository.CartRepository, orders repository.OrderRepository,
	engine *pricing.Engine, currency string) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		orders:   orders,
		pricing:  engine,
		currency: currency,
		now:      time.Now,
	}
}

func (s *CheckoutService) BuildOrder(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	if req.SessionID == "" {
		return nil, domain.ErrEmptyCart
	}
	cart, err := s.carts.GetCart(ctx, req.SessionID)
	if errors.Is(err, repository.ErrCartNotFound) || (err == nil && cart.IsEmpty()) {
		return nil, domain.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	order, err := s.orders.PlaceOrder(ctx, cart.Items, func(products map[int64]*domain.Product) (*domain.Order, error) {
		return s.snapshot(req, cart, products)
	})
	if err != nil {
		var stockErr *domain.InsufficientStockError
		if errors.As(err, &stockErr) {
			slog.InfoContext(ctx, "checkout rejected for stock", "session_id", req.SessionID,
				"product_id", stockErr.ProductID, "requested", stockErr.Requested, "available", stockErr.Available)
		} else {
			slog.ErrorContext(ctx, "checkout failed", "session_id", req.SessionID, "error", err)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "order created", "order_id", order.ID, "session_id", req.SessionID, "total", order.Total.String())
	return order, nil
}

// snapshot validates every line against locked stock and freezes name and
// price. The total is priced from the snapshot, not from live prices.
func (s *CheckoutService) snapshot(req CheckoutRequest, cart *domain.Cart, products map[int64]*domain.Product) (*domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		p, ok := products[line.ProductID]
		if !ok || !p.Active {
			stockErr := &domain.InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity}
			if ok {
				stockErr.ProductName = p.Name
			}
			return nil, stockErr
		}
		if line.Quantity > p.Stock {
			return nil, &domain.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   line.Quantity,
				Available:   p.Stock,
			}
		}
		items = append(items, domain.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
		})
	}

	summary := s.pricing.PriceItems(items)
	now := s.now()
	return &domain.Order{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Items:     items,
		Subtotal:  summary.Subtotal,
		Shipping:  summary.Shipping,
		Total:     summary.Total,
		Currency:  s.currency,
		Status:    domain.OrderStatusPendingPayment,
		Customer:  req.Customer,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
