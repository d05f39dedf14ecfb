package domain

type OrderStatus string

const (
	OrderStatusPendingPayment        OrderStatus = "pending_payment"
	OrderStatusConfirmed             OrderStatus = "confirmed"
	OrderStatusProcessing            OrderStatus = "processing"
	OrderStatusShipped               OrderStatus = "shipped"
	OrderStatusDelivered             OrderStatus = "delivered"
	OrderStatusCancellationRequested OrderStatus = "cancellation_requested"
	OrderStatusCancelled             OrderStatus = "cancelled"
)

// fulfillment is the happy path; each status may only move to the next one.
var fulfillment = map[OrderStatus]OrderStatus{
	OrderStatusPendingPayment: OrderStatusConfirmed,
	OrderStatusConfirmed:      OrderStatusProcessing,
	OrderStatusProcessing:     OrderStatusShipped,
	OrderStatusShipped:        OrderStatusDelivered,
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancellationRequested, OrderStatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a customer may ask to cancel from this status.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPendingPayment || s == OrderStatusConfirmed || s == OrderStatusProcessing
}

// Next returns the fulfillment successor, if any.
func (s OrderStatus) Next() (OrderStatus, bool) {
	next, ok := fulfillment[s]
	return next, ok
}

func (s OrderStatus) String() string {
	return string(s)
}

type CancellationAction string

const (
	CancellationApprove CancellationAction = "approve"
	CancellationReject  CancellationAction = "reject"
)
