package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for local runs. It creates orders with
// random ids, fails failurePercent of calls, and can pay its own orders.
type Sandbox struct {
	keyID          string
	signer         *Signer
	failurePercent int
	roll           func() int

	mu     sync.Mutex
	orders map[string]*Order
}

func NewSandbox(keyID string, signer *Signer, failurePercent int) *Sandbox {
	return &Sandbox{
		keyID:          keyID,
		signer:         signer,
		failurePercent: failurePercent,
		roll:           func() int { return rand.Intn(100) },
		orders:         make(map[string]*Order),
	}
}

func (s *Sandbox) KeyID() string {
	return s.keyID
}

func (s *Sandbox) CreateOrder(_ context.Context, req CreateOrderRequest) (*Order, error) {
	if s.roll() < s.failurePercent {
		return nil, fmt.Errorf("%w: sandbox refused order %s", ErrUnavailable, req.Receipt)
	}
	order := &Order{
		ID:       "order_" + shortID(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}
	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()
	return order, nil
}

// Pay simulates the widget completing a payment and returns a signed receipt.
func (s *Sandbox) Pay(gatewayOrderID string) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[gatewayOrderID]
	if !ok {
		return nil, fmt.Errorf("sandbox order %s not found", gatewayOrderID)
	}
	order.Status = "paid"
	paymentID := "pay_" + shortID()
	return &Receipt{
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        s.signer.Sign(gatewayOrderID, paymentID),
	}, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
