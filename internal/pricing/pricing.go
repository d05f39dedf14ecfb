// Package pricing derives cart and order totals. Everything here is pure.
package pricing

import (
	"github.com/fjod/farmstand/internal/domain"
	"github.com/shopspring/decimal"
)

// Line is one priced quantity of a product.
type Line struct {
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Summary struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"total_items"`
}

// Engine applies a flat shipping fee to any non-empty subtotal.
type Engine struct {
	flatFee decimal.Decimal
}

func NewEngine(flatFee decimal.Decimal) *Engine {
	return &Engine{flatFee: flatFee}
}

func (e *Engine) FlatFee() decimal.Decimal {
	return e.flatFee
}

func (e *Engine) Price(lines []Line) Summary {
	s := Summary{Subtotal: decimal.Zero, Shipping: decimal.Zero}
	for _, l := range lines {
		s.Subtotal = s.Subtotal.Add(l.Total())
		s.TotalItems += l.Quantity
	}
	if s.Subtotal.IsPositive() {
		s.Shipping = e.flatFee
	}
	s.Total = s.Subtotal.Add(s.Shipping)
	return s
}

// PriceCart prices cart lines at live catalog prices. Lines whose product is
// missing or inactive are skipped.
func (e *Engine) PriceCart(cart *domain.Cart, catalog map[int64]*domain.Product) Summary {
	lines := make([]Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		p, ok := catalog[item.ProductID]
		if !ok || !p.Active {
			continue
		}
		lines = append(lines, Line{ProductID: item.ProductID, UnitPrice: p.Price, Quantity: item.Quantity})
	}
	return e.Price(lines)
}

// PriceItems prices an order snapshot at its captured prices.
func (e *Engine) PriceItems(items []domain.OrderItem) Summary {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{ProductID: item.ProductID, UnitPrice: item.Price, Quantity: item.Quantity})
	}
	return e.Price(lines)
}

// ToMinorUnits converts an amount to the gateway's integer minor units.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
