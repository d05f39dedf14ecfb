package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/farmstand/pkg/circuitbreaker"
	"github.com/go-resty/resty/v2"
)

type HTTPConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// HTTPClient calls a Razorpay-style REST API with basic auth.
type HTTPClient struct {
	rest    *resty.Client
	keyID   string
	breaker *circuitbreaker.Breaker[*Order]
}

type errorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &HTTPClient{
		rest:    rest,
		keyID:   cfg.KeyID,
		breaker: circuitbreaker.New[*Order](circuitbreaker.DefaultConfig("payment-gateway")),
	}
}

func (c *HTTPClient) KeyID() string {
	return c.keyID
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	order, err := c.breaker.Execute(func() (*Order, error) {
		var out Order
		var apiErr errorEnvelope
		resp, err := c.rest.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			SetError(&apiErr).
			Post("/v1/orders")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if resp.IsError() {
			return nil, &APIError{
				StatusCode:  resp.StatusCode(),
				Code:        apiErr.Error.Code,
				Description: apiErr.Error.Description,
			}
		}
		if out.ID == "" {
			return nil, errors.New("gateway returned an order without id")
		}
		return &out, nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return order, err
}
