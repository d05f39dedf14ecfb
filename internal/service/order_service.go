package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/repository"
)

const defaultAdminListLimit = 100

type OrderService struct {
	orders repository.OrderRepository
	now    func() time.Time
}

func NewOrderService(orders repository.OrderRepository) *OrderService {
	return &OrderService{orders: orders, now: time.Now}
}

func (s *OrderService) GetOrder(ctx context.Context, actor Actor, id int64) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order) {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

func (s *OrderService) ListMyOrders(ctx context.Context, actor Actor) ([]*domain.Order, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrForbidden
	}
	return s.orders.ListOrdersByUserID(ctx, actor.UserID)
}

// ListOrders is the admin view. An empty status lists every status.
func (s *OrderService) ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error) {
	if status != "" && !status.IsValid() {
		return nil, domain.ErrInvalidState
	}
	if limit <= 0 || limit > defaultAdminListLimit {
		limit = defaultAdminListLimit
	}
	return s.orders.ListOrders(ctx, status, limit)
}

// RequestCancellation is customer initiated and only the owner may ask.
func (s *OrderService) RequestCancellation(ctx context.Context, actor Actor, orderID int64, reason string) (*domain.Order, error) {
	return s.transition(ctx, orderID, func(o *domain.Order) (repository.UpdateOptions, error) {
		if !o.OwnedBy(actor.UserID) {
			return repository.UpdateOptions{}, domain.ErrForbidden
		}
		if err := o.RequestCancellation(reason, s.now()); err != nil {
			return repository.UpdateOptions{}, err
		}
		return repository.UpdateOptions{EventType: domain.EventOrderCancellationRequested}, nil
	})
}

// ProcessCancellation approves or rejects a pending request. Approval puts
// the reserved stock back.
func (s *OrderService) ProcessCancellation(ctx context.Context, orderID int64, action domain.CancellationAction, adminResponse string) (*domain.Order, error) {
	return s.transition(ctx, orderID, func(o *domain.Order) (repository.UpdateOptions, error) {
		if err := o.ProcessCancellation(action, adminResponse, s.now()); err != nil {
			return repository.UpdateOptions{}, err
		}
		if action == domain.CancellationApprove {
			return repository.UpdateOptions{RestoreStock: true, EventType: domain.EventOrderCancelled}, nil
		}
		return repository.UpdateOptions{EventType: domain.EventOrderCancellationRejected}, nil
	})
}

// AdvanceFulfillment moves a paid order one step along
// confirmed, processing, shipped, delivered.
func (s *OrderService) AdvanceFulfillment(ctx context.Context, orderID int64, next domain.OrderStatus) (*domain.Order, error) {
	return s.transition(ctx, orderID, func(o *domain.Order) (repository.UpdateOptions, error) {
		if err := o.Advance(next, s.now()); err != nil {
			return repository.UpdateOptions{}, err
		}
		return repository.UpdateOptions{EventType: domain.StatusEvent(next)}, nil
	})
}

type transitionFunc func(o *domain.Order) (repository.UpdateOptions, error)

// transition applies apply to a copy of the stored order and persists it only
// if nobody moved the order meanwhile. On a lost race the order is reloaded
// and apply gets one more chance to decide against the fresh status.
func (s *OrderService) transition(ctx context.Context, orderID int64, apply transitionFunc) (*domain.Order, error) {
	for attempt := 0; ; attempt++ {
		current, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		opts, err := apply(next)
		if err != nil {
			return nil, err
		}
		err = s.orders.UpdateOrder(ctx, next, current.Status, opts)
		if err == nil {
			slog.InfoContext(ctx, "order status changed", "order_id", orderID,
				"from", current.Status, "to", next.Status)
			return next, nil
		}
		if !errors.Is(err, repository.ErrStaleOrder) || attempt > 0 {
			if errors.Is(err, repository.ErrStaleOrder) {
				slog.WarnContext(ctx, "order transition lost twice", "order_id", orderID)
			}
			return nil, err
		}
	}
}
