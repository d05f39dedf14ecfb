package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPaymentInit       = errors.New("payment gateway order could not be created")
	ErrSignatureInvalid  = errors.New("payment signature is invalid")
	ErrAlreadyVerified   = errors.New("payment already verified")
	ErrInvalidState      = errors.New("transition not allowed from current order status")
	ErrTerminalState     = errors.New("order is in a terminal status")
	ErrNotEligible       = errors.New("not eligible to review this product")

	ErrSessionRequired     = errors.New("session id is required for checkout")
	ErrEmptyCart           = errors.New("cart is empty, nothing to checkout")
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrReviewNotFound      = errors.New("review not found")
	ErrCartVersionConflict = errors.New("cart was modified by another request")
	ErrAmountMismatch      = errors.New("amount or currency does not match the order")
	ErrForbidden           = errors.New("order belongs to another customer")
	ErrReasonRequired      = errors.New("cancellation reason is required")
	ErrResponseTooShort    = errors.New("admin response must be at least 5 characters")
	ErrUnknownAction       = errors.New("unknown cancellation action")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrInvalidInput        = errors.New("invalid input")
)

// InsufficientStockError names the product that failed the stock check.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("insufficient stock for %q (product %d): requested %d, available %d",
			e.ProductName, e.ProductID, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
