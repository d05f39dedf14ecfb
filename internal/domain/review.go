package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Review struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID int64     `json:"product_id"`
	OrderID   *int64    `json:"order_id,omitempty"`
	Rating    int       `json:"rating"`
	Text      string    `json:"review_text"`
	Verified  bool      `json:"verified"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
}

func ValidRating(r int) bool {
	return r >= 1 && r <= 5
}

// ReviewEligibility lists the delivered orders that still allow a review of
// one product by one user.
type ReviewEligibility struct {
	ProductID int64   `json:"product_id"`
	CanReview bool    `json:"can_review"`
	OrderIDs  []int64 `json:"order_ids"`
}

type RatingSummary struct {
	ProductID     int64           `json:"product_id"`
	AverageRating decimal.Decimal `json:"average_rating"`
	TotalReviews  int             `json:"total_reviews"`
}
