package service

import (
	"github.com/fjod/farmstand/internal/pricing"
	"github.com/shopspring/decimal"
)

type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	// Available is false once the product is gone or deactivated; such lines
	// are not priced.
	Available bool `json:"available"`
	InStock   bool `json:"in_stock"`
}

// CartView is a cart priced at live catalog prices.
type CartView struct {
	SessionID string     `json:"session_id"`
	Version   int64      `json:"version"`
	Items     []CartLine `json:"items"`
	pricing.Summary
	Currency string `json:"currency"`
}
