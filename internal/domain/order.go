package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const minAdminResponseLen = 5

// OrderItem is the catalog snapshot taken at checkout. It is never re-read
// from the catalog.
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CustomerInfo struct {
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Phone   string          `json:"phone,omitempty"`
	Address ShippingAddress `json:"address"`
}

// PaymentInfo is written once, when the gateway receipt verifies.
type PaymentInfo struct {
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Signature        string    `json:"-"`
	Verified         bool      `json:"verified"`
	VerifiedAt       time.Time `json:"verified_at"`
}

type Order struct {
	ID        int64           `json:"id"`
	UserID    *string         `json:"user_id,omitempty"`
	SessionID string          `json:"-"`
	Items     []OrderItem     `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	Status    OrderStatus     `json:"status"`
	Customer  CustomerInfo    `json:"customer"`

	GatewayOrderID string       `json:"gateway_order_id,omitempty"`
	Payment        *PaymentInfo `json:"payment,omitempty"`

	PreCancellationStatus     OrderStatus `json:"pre_cancellation_status,omitempty"`
	CancellationReason        string      `json:"cancellation_request_reason,omitempty"`
	CancellationRequestedAt   *time.Time  `json:"cancellation_requested_at,omitempty"`
	CancellationAdminResponse string      `json:"cancellation_admin_response,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID placed the order. Guest orders have no owner.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID != nil && userID != "" && *o.UserID == userID
}

func (o *Order) IsPaid() bool {
	return o.Payment != nil && o.Payment.Verified
}

// guard rejects every transition out of a terminal status.
func (o *Order) guard() error {
	if o.Status.IsTerminal() {
		return ErrTerminalState
	}
	return nil
}

// CanInitializePayment reports whether a gateway order may be (re)created.
func (o *Order) CanInitializePayment() error {
	if o.IsPaid() {
		return ErrAlreadyVerified
	}
	if err := o.guard(); err != nil {
		return err
	}
	if o.Status != OrderStatusPendingPayment {
		return ErrInvalidState
	}
	return nil
}

// ConfirmPayment moves pending_payment to confirmed and stores the receipt.
func (o *Order) ConfirmPayment(info PaymentInfo, now time.Time) error {
	if o.IsPaid() {
		return ErrAlreadyVerified
	}
	if err := o.guard(); err != nil {
		return err
	}
	if o.Status != OrderStatusPendingPayment {
		return ErrInvalidState
	}
	info.Verified = true
	info.VerifiedAt = now
	o.Payment = &info
	o.Status = OrderStatusConfirmed
	o.UpdatedAt = now
	return nil
}

func (o *Order) RequestCancellation(reason string, now time.Time) error {
	if err := o.guard(); err != nil {
		return err
	}
	if !o.Status.Cancellable() {
		return ErrInvalidState
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	o.PreCancellationStatus = o.Status
	o.Status = OrderStatusCancellationRequested
	o.CancellationReason = reason
	o.CancellationRequestedAt = &now
	o.CancellationAdminResponse = ""
	o.UpdatedAt = now
	return nil
}

// ProcessCancellation resolves a pending cancellation request. Approval
// cancels the order; rejection restores the status held before the request.
// The admin response survives resolution so the customer can read it.
func (o *Order) ProcessCancellation(action CancellationAction, adminResponse string, now time.Time) error {
	if err := o.guard(); err != nil {
		return err
	}
	if o.Status != OrderStatusCancellationRequested {
		return ErrInvalidState
	}
	adminResponse = strings.TrimSpace(adminResponse)

	switch action {
	case CancellationApprove:
		o.Status = OrderStatusCancelled
	case CancellationReject:
		if adminResponse != "" && len([]rune(adminResponse)) < minAdminResponseLen {
			return ErrResponseTooShort
		}
		if !o.PreCancellationStatus.Cancellable() {
			return ErrInvalidState
		}
		o.Status = o.PreCancellationStatus
	default:
		return ErrUnknownAction
	}

	o.PreCancellationStatus = ""
	o.CancellationReason = ""
	o.CancellationRequestedAt = nil
	o.CancellationAdminResponse = adminResponse
	o.UpdatedAt = now
	return nil
}

// Advance moves the order one fulfillment step forward. Payment confirmation
// is not a fulfillment step and must go through ConfirmPayment.
func (o *Order) Advance(next OrderStatus, now time.Time) error {
	if err := o.guard(); err != nil {
		return err
	}
	if o.Status == OrderStatusPendingPayment {
		return ErrInvalidState
	}
	want, ok := o.Status.Next()
	if !ok || want != next {
		return ErrInvalidState
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so callers can try a transition without touching
// the original.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.UserID != nil {
		uid := *o.UserID
		c.UserID = &uid
	}
	if o.Payment != nil {
		p := *o.Payment
		c.Payment = &p
	}
	if o.CancellationRequestedAt != nil {
		at := *o.CancellationRequestedAt
		c.CancellationRequestedAt = &at
	}
	return &c
}
