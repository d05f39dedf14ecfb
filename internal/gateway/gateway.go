// Package gateway talks to the external payment gateway: it creates payable
// gateway orders and checks the signed receipts the checkout widget returns.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnavailable = errors.New("payment gateway unavailable")

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"` // minor units
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Receipt is what the client hands back after paying.
type Receipt struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	// KeyID is the public key the checkout widget is opened with.
	KeyID() string
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway responded %d %s: %s", e.StatusCode, e.Code, e.Description)
}
