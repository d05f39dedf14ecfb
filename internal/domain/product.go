package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Purchasable reports whether qty units can be taken from live stock.
func (p *Product) Purchasable(qty int) bool {
	return p != nil && p.Active && qty <= p.Stock
}
