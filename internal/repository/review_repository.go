package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// deliveredOrderContains matches a delivered order of user $1 whose item
// snapshot contains product $2.
const deliveredOrderContains = `o.user_id = $1 AND o.status = 'delivered'
	AND o.items @> jsonb_build_array(jsonb_build_object('product_id', $2::bigint))`

const reviewColumns = `id, user_id, product_id, order_id, rating, review_text, verified, hidden, created_at`

func scanReview(s rowScanner) (*domain.Review, error) {
	var rv domain.Review
	var orderID sql.NullInt64
	if err := s.Scan(&rv.ID, &rv.UserID, &rv.ProductID, &orderID, &rv.Rating, &rv.Text,
		&rv.Verified, &rv.Hidden, &rv.CreatedAt); err != nil {
		return nil, err
	}
	if orderID.Valid {
		rv.OrderID = &orderID.Int64
	}
	return &rv, nil
}

// EligibleOrderIDs lists delivered orders of the user containing the product
// that have not been reviewed for it yet, oldest first.
func (r *Repository) EligibleOrderIDs(ctx context.Context, userID string, productID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id FROM orders o
		 WHERE `+deliveredOrderContains+`
		   AND NOT EXISTS (
		       SELECT 1 FROM product_reviews pr
		       WHERE pr.user_id = o.user_id AND pr.product_id = $2 AND pr.order_id = o.id)
		 ORDER BY o.created_at, o.id`,
		userID, productID)
	if err != nil {
		return nil, fmt.Errorf("query eligible orders: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan eligible order: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// CreateVerifiedReview re-checks eligibility in the insert itself. If the
// order is not a delivered order of the user containing the product, or the
// tuple was already reviewed, nothing is written and ErrNotEligible is returned.
func (r *Repository) CreateVerifiedReview(ctx context.Context, review *domain.Review) error {
	if review.OrderID == nil {
		return domain.ErrNotEligible
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO product_reviews (user_id, product_id, order_id, rating, review_text, verified, hidden, created_at)
		 SELECT $1::text, $2::bigint, o.id, $4::smallint, $5::text, TRUE, FALSE, NOW() FROM orders o
		 WHERE o.id = $3::bigint AND `+deliveredOrderContains+`
		 ON CONFLICT (user_id, product_id, order_id) DO NOTHING
		 RETURNING id, created_at`,
		review.UserID, review.ProductID, *review.OrderID, review.Rating, review.Text,
	).Scan(&review.ID, &review.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotEligible
	}
	if err != nil {
		return fmt.Errorf("insert verified review: %w", err)
	}
	review.Verified = true
	review.Hidden = false
	return nil
}

// CreateReview stores a review that did not pass the eligibility gate, so it
// is never marked verified.
func (r *Repository) CreateReview(ctx context.Context, review *domain.Review) error {
	var orderID sql.NullInt64
	if review.OrderID != nil {
		orderID = sql.NullInt64{Int64: *review.OrderID, Valid: true}
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO product_reviews (user_id, product_id, order_id, rating, review_text, verified, hidden, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6, NOW())
		 RETURNING id, created_at`,
		review.UserID, review.ProductID, orderID, review.Rating, review.Text, review.Hidden,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReview
		}
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("insert review: %w", err)
	}
	review.Verified = false
	return nil
}

func (r *Repository) ListReviews(ctx context.Context, productID int64, includeHidden bool) ([]*domain.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM product_reviews
		 WHERE product_id = $1 AND ($2 OR NOT hidden)
		 ORDER BY created_at DESC, id DESC`,
		productID, includeHidden)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return reviews, nil
}

func (r *Repository) RatingSummary(ctx context.Context, productID int64) (*domain.RatingSummary, error) {
	summary := &domain.RatingSummary{ProductID: productID, AverageRating: decimal.Zero}
	var avg decimal.NullDecimal
	err := r.db.QueryRowContext(ctx,
		`SELECT ROUND(AVG(rating)::numeric, 2), COUNT(*) FROM product_reviews
		 WHERE product_id = $1 AND NOT hidden`, productID,
	).Scan(&avg, &summary.TotalReviews)
	if err != nil {
		return nil, fmt.Errorf("query rating summary: %w", err)
	}
	if avg.Valid {
		summary.AverageRating = avg.Decimal
	}
	return summary, nil
}

func (r *Repository) SetReviewHidden(ctx context.Context, id int64, hidden bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE product_reviews SET hidden = $2 WHERE id = $1`, id, hidden)
	if err != nil {
		return fmt.Errorf("update review visibility: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update review visibility: %w", err)
	}
	if n == 0 {
		return domain.ErrReviewNotFound
	}
	return nil
}
