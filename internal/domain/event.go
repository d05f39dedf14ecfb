package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated               = "order.created"
	EventOrderConfirmed             = "order.confirmed"
	EventOrderCancellationRequested = "order.cancellation_requested"
	EventOrderCancellationRejected  = "order.cancellation_rejected"
	EventOrderCancelled             = "order.cancelled"
	EventOrderProcessing            = "order.processing"
	EventOrderShipped               = "order.shipped"
	EventOrderDelivered             = "order.delivered"
)

// OrderEvent is the outbox payload published for order lifecycle changes.
type OrderEvent struct {
	OrderID    int64           `json:"order_id"`
	UserID     *string         `json:"user_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Status     OrderStatus     `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	Items      []OrderItem     `json:"items"`
	Reason     string          `json:"reason,omitempty"`
	Note       string          `json:"note,omitempty"`
	PaymentID  string          `json:"payment_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewOrderEvent(o *Order) OrderEvent {
	ev := OrderEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		SessionID:  o.SessionID,
		Status:     o.Status,
		Total:      o.Total,
		Currency:   o.Currency,
		Items:      o.Items,
		Reason:     o.CancellationReason,
		Note:       o.CancellationAdminResponse,
		OccurredAt: o.UpdatedAt,
	}
	if o.Payment != nil {
		ev.PaymentID = o.Payment.GatewayPaymentID
	}
	return ev
}

// StatusEvent names the event emitted when an order enters status.
func StatusEvent(status OrderStatus) string {
	switch status {
	case OrderStatusConfirmed:
		return EventOrderConfirmed
	case OrderStatusProcessing:
		return EventOrderProcessing
	case OrderStatusShipped:
		return EventOrderShipped
	case OrderStatusDelivered:
		return EventOrderDelivered
	case OrderStatusCancellationRequested:
		return EventOrderCancellationRequested
	case OrderStatusCancelled:
		return EventOrderCancelled
	}
	return ""
}

func (o *Order) AggregateID() string {
	return strconv.FormatInt(o.ID, 10)
}
