package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/farmstand/internal/domain"
)

const orderColumns = `id, user_id, session_id, items, subtotal, shipping, total, currency, status, customer,
	gateway_order_id, payment_id, payment_signature, payment_verified, payment_verified_at,
	pre_cancellation_status, cancellation_request_reason, cancellation_requested_at,
	cancellation_admin_response, created_at, updated_at`

func scanOrder(s rowScanner) (*domain.Order, error) {
	var (
		order                                  domain.Order
		userID, gatewayOrderID, paymentID      sql.NullString
		signature, preStatus, reason, response sql.NullString
		verified                               bool
		verifiedAt, requestedAt                sql.NullTime
		itemsJSON, customerJSON                []byte
	)
	err := s.Scan(
		&order.ID,
		&userID,
		&order.SessionID,
		&itemsJSON,
		&order.Subtotal,
		&order.Shipping,
		&order.Total,
		&order.Currency,
		&order.Status,
		&customerJSON,
		&gatewayOrderID,
		&paymentID,
		&signature,
		&verified,
		&verifiedAt,
		&preStatus,
		&reason,
		&requestedAt,
		&response,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(customerJSON, &order.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal order customer: %w", err)
	}
	if userID.Valid {
		order.UserID = &userID.String
	}
	order.GatewayOrderID = gatewayOrderID.String
	if paymentID.Valid {
		order.Payment = &domain.PaymentInfo{
			GatewayOrderID:   gatewayOrderID.String,
			GatewayPaymentID: paymentID.String,
			Signature:        signature.String,
			Verified:         verified,
			VerifiedAt:       verifiedAt.Time,
		}
	}
	order.PreCancellationStatus = domain.OrderStatus(preStatus.String)
	order.CancellationReason = reason.String
	if requestedAt.Valid {
		order.CancellationRequestedAt = &requestedAt.Time
	}
	order.CancellationAdminResponse = response.String
	return &order, nil
}

// PlaceOrder locks the cart's products, lets build validate stock and snapshot
// them, then decrements stock and inserts the order with its outbox event.
// Nothing is written unless every step succeeds.
func (r *Repository) PlaceOrder(ctx context.Context, items []domain.CartItem, build OrderBuildFunc) (*domain.Order, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	var order *domain.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		order, err = build(products)
		if err != nil {
			return err
		}

		for _, item := range order.Items {
			res, err := tx.ExecContext(ctx,
				`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
				item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return &domain.InsufficientStockError{ProductID: item.ProductID, ProductName: item.Name, Requested: item.Quantity}
			}
		}

		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		return insertOrderEvent(ctx, tx, order, domain.EventOrderCreated)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return fmt.Errorf("failed to marshal order customer: %w", err)
	}

	query := `INSERT INTO orders (user_id, session_id, items, subtotal, shipping, total, currency, status, customer, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	          RETURNING id, created_at, updated_at`

	err = tx.QueryRowContext(ctx, query,
		order.UserID,
		order.SessionID,
		itemsJSON,
		order.Subtotal,
		order.Shipping,
		order.Total,
		order.Currency,
		order.Status,
		customerJSON,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *Repository) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE gateway_order_id = $1`, gatewayOrderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by gateway order id: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

// ListOrders lists the newest orders, optionally restricted to one status.
func (r *Repository) ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	if status == "" {
		return r.queryOrders(ctx,
			`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	}
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		status, limit)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

// SetGatewayOrder records the gateway order created for a still unpaid order.
func (r *Repository) SetGatewayOrder(ctx context.Context, orderID int64, gatewayOrderID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET gateway_order_id = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3 AND NOT payment_verified`,
		orderID, gatewayOrderID, domain.OrderStatusPendingPayment)
	if err != nil {
		return fmt.Errorf("set gateway order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set gateway order: %w", err)
	}
	if n == 0 {
		return ErrStaleOrder
	}
	return nil
}

// UpdateOrder persists a transition computed on order, but only if the stored
// status still equals expected. Stock restore, cart clearing and the outbox
// event commit in the same transaction. Payment fields are write-once.
func (r *Repository) UpdateOrder(ctx context.Context, order *domain.Order, expected domain.OrderStatus, opts UpdateOptions) error {
	var paymentID, signature string
	var verifiedAt sql.NullTime
	verified := false
	if order.Payment != nil {
		paymentID = order.Payment.GatewayPaymentID
		signature = order.Payment.Signature
		verified = order.Payment.Verified
		verifiedAt = sql.NullTime{Time: order.Payment.VerifiedAt, Valid: order.Payment.Verified}
	}
	var requestedAt sql.NullTime
	if order.CancellationRequestedAt != nil {
		requestedAt = sql.NullTime{Time: *order.CancellationRequestedAt, Valid: true}
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE orders SET
				status = $3,
				pre_cancellation_status = $4,
				cancellation_request_reason = $5,
				cancellation_requested_at = $6,
				cancellation_admin_response = $7,
				payment_id = COALESCE(payment_id, $8),
				payment_signature = COALESCE(payment_signature, $9),
				payment_verified = payment_verified OR $10,
				payment_verified_at = COALESCE(payment_verified_at, $11),
				updated_at = NOW()
			 WHERE id = $1 AND status = $2
			 RETURNING updated_at`,
			order.ID,
			expected,
			order.Status,
			nullString(string(order.PreCancellationStatus)),
			nullString(order.CancellationReason),
			requestedAt,
			nullString(order.CancellationAdminResponse),
			nullString(paymentID),
			nullString(signature),
			verified,
			verifiedAt,
		).Scan(&order.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStaleOrder
		}
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		if opts.RestoreStock {
			for _, item := range order.Items {
				if _, err := tx.ExecContext(ctx,
					`UPDATE products SET stock = stock + $2 WHERE id = $1`,
					item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("restore stock: %w", err)
				}
			}
		}

		if opts.ClearCart && order.SessionID != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE cart_sessions SET version = version + 1, updated_at = NOW() WHERE session_id = $1`,
				order.SessionID); err != nil {
				return fmt.Errorf("bump cart version: %w", err)
			}
			if err := clearCartItems(ctx, tx, order.SessionID); err != nil {
				return err
			}
		}

		if opts.EventType != "" {
			return insertOrderEvent(ctx, tx, order, opts.EventType)
		}
		return nil
	})
}
