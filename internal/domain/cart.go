package domain

import "time"

// MaxLineQuantity caps a single cart line. Larger requests are clamped.
const MaxLineQuantity = 99

// Cart is the stored line set of one browser session. Version grows by one on
// every write and is zero for a session that has never been written.
type Cart struct {
	SessionID string     `json:"session_id"`
	Version   int64      `json:"version"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

func NewEmptyCart(sessionID string) *Cart {
	return &Cart{SessionID: sessionID, Items: []CartItem{}}
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// AddItem sums quantities when the product already has a line. The sum is
// clamped to MaxLineQuantity.
func (c *Cart) AddItem(productID int64, qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	qty = min(qty, MaxLineQuantity)
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = min(c.Items[i].Quantity+qty, MaxLineQuantity)
			return nil
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty, AddedAt: now})
	return nil
}

// SetQuantity overwrites the line quantity. A quantity below one removes the line.
func (c *Cart) SetQuantity(productID int64, qty int, now time.Time) {
	if qty < 1 {
		c.RemoveItem(productID)
		return
	}
	qty = min(qty, MaxLineQuantity)
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = qty
			return
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty, AddedAt: now})
}

// Item returns the line for productID, if any.
func (c *Cart) Item(productID int64) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

func (c *Cart) RemoveItem(productID int64) {
	for i, item := range c.Items {
		if item.ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
