package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/repository"
)

type ReviewRequest struct {
	ProductID int64
	// OrderID selects the delivered order the review is attached to. Zero
	// picks the oldest eligible one.
	OrderID int64
	Rating  int
	Text    string
}

// ReviewService gates verified reviews on delivered purchases.
type ReviewService struct {
	reviews  repository.ReviewRepository
	products repository.ProductRepository
}

func NewReviewService(reviews repository.ReviewRepository, products repository.ProductRepository) *ReviewService {
	return &ReviewService{reviews: reviews, products: products}
}

func (s *ReviewService) Eligibility(ctx context.Context, actor Actor, productID int64) (*domain.ReviewEligibility, error) {
	e := &domain.ReviewEligibility{ProductID: productID, OrderIDs: []int64{}}
	if !actor.Authenticated() {
		return e, nil
	}
	ids, err := s.reviews.EligibleOrderIDs(ctx, actor.UserID, productID)
	if err != nil {
		return nil, err
	}
	e.OrderIDs = ids
	e.CanReview = len(ids) > 0
	return e, nil
}

// CanReview answers the gate question alone: some delivered order of the
// user contains the product and has not been reviewed for it.
func (s *ReviewService) CanReview(ctx context.Context, actor Actor, productID int64) (bool, error) {
	e, err := s.Eligibility(ctx, actor, productID)
	if err != nil {
		return false, err
	}
	return e.CanReview, nil
}

func (s *ReviewService) SubmitReview(ctx context.Context, actor Actor, req ReviewRequest) (*domain.Review, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrNotEligible
	}
	if !domain.ValidRating(req.Rating) {
		return nil, domain.ErrInvalidRating
	}

	orderID := req.OrderID
	if orderID == 0 {
		ids, err := s.reviews.EligibleOrderIDs(ctx, actor.UserID, req.ProductID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, domain.ErrNotEligible
		}
		orderID = ids[0]
	}

	review := &domain.Review{
		UserID:    actor.UserID,
		ProductID: req.ProductID,
		OrderID:   &orderID,
		Rating:    req.Rating,
		Text:      strings.TrimSpace(req.Text),
	}
	if err := s.reviews.CreateVerifiedReview(ctx, review); err != nil {
		if errors.Is(err, domain.ErrNotEligible) {
			slog.InfoContext(ctx, "review rejected by eligibility gate", "user_id", actor.UserID,
				"product_id", req.ProductID, "order_id", orderID)
		}
		return nil, err
	}
	slog.InfoContext(ctx, "review created", "review_id", review.ID, "product_id", review.ProductID, "order_id", orderID)
	return review, nil
}

// ImportReview lets an admin add a review without a purchase behind it. Such
// reviews are stored unverified and never occupy an order's review slot.
func (s *ReviewService) ImportReview(ctx context.Context, userID string, req ReviewRequest) (*domain.Review, error) {
	if !domain.ValidRating(req.Rating) {
		return nil, domain.ErrInvalidRating
	}
	if req.OrderID != 0 {
		return nil, fmt.Errorf("%w: imported reviews cannot reference an order", domain.ErrInvalidInput)
	}
	if _, err := s.products.GetProduct(ctx, req.ProductID); err != nil {
		return nil, err
	}
	review := &domain.Review{
		UserID:    userID,
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Text:      strings.TrimSpace(req.Text),
	}
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// ListReviews hides moderated reviews unless the actor is an admin.
func (s *ReviewService) ListReviews(ctx context.Context, actor Actor, productID int64) ([]*domain.Review, error) {
	return s.reviews.ListReviews(ctx, productID, actor.IsAdmin())
}

func (s *ReviewService) Summary(ctx context.Context, productID int64) (*domain.RatingSummary, error) {
	return s.reviews.RatingSummary(ctx, productID)
}

func (s *ReviewService) SetHidden(ctx context.Context, reviewID int64, hidden bool) error {
	if err := s.reviews.SetReviewHidden(ctx, reviewID, hidden); err != nil {
		return err
	}
	slog.InfoContext(ctx, "review visibility changed", "review_id", reviewID, "hidden", hidden)
	return nil
}
