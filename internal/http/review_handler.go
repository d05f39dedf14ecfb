package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/service"
)

type ReviewService interface {
	Eligibility(ctx context.Context, actor service.Actor, productID int64) (*domain.ReviewEligibility, error)
	SubmitReview(ctx context.Context, actor service.Actor, req service.ReviewRequest) (*domain.Review, error)
	ImportReview(ctx context.Context, userID string, req service.ReviewRequest) (*domain.Review, error)
	ListReviews(ctx context.Context, actor service.Actor, productID int64) ([]*domain.Review, error)
	Summary(ctx context.Context, productID int64) (*domain.RatingSummary, error)
	SetHidden(ctx context.Context, reviewID int64, hidden bool) error
}

type ReviewHandler struct {
	reviews ReviewService
	timeout time.Duration
}

func NewReviewHandler(reviews ReviewService, timeout time.Duration) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, timeout: timeout}
}

type SubmitReviewRequestDTO struct {
	OrderID    int64  `json:"order_id" validate:"gte=0"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	ReviewText string `json:"review_text" validate:"max=4000"`
}

type ImportReviewRequestDTO struct {
	UserID     string `json:"user_id" validate:"required"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	ReviewText string `json:"review_text" validate:"max=4000"`
}

type VisibilityRequestDTO struct {
	Hidden *bool `json:"hidden" validate:"required"`
}

type ReviewListResponseDTO struct {
	Reviews []*domain.Review      `json:"reviews"`
	Summary *domain.RatingSummary `json:"summary"`
}

// GET /api/v1/products/{id}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	reviews, err := h.reviews.ListReviews(ctx, getActor(r.Context()), productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	summary, err := h.reviews.Summary(ctx, productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ReviewListResponseDTO{Reviews: reviews, Summary: summary})
}

// GET /api/v1/products/{id}/review-eligibility
func (h *ReviewHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	e, err := h.reviews.Eligibility(ctx, getActor(r.Context()), productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// POST /api/v1/products/{id}/reviews
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req SubmitReviewRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	review, err := h.reviews.SubmitReview(ctx, getActor(r.Context()), service.ReviewRequest{
		ProductID: productID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Text:      req.ReviewText,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}

// POST /api/v1/admin/reviews
func (h *ReviewHandler) ImportReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ImportReviewRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	review, err := h.reviews.ImportReview(ctx, req.UserID, service.ReviewRequest{
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Text:      req.ReviewText,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}

// POST /api/v1/admin/reviews/{id}/visibility
func (h *ReviewHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reviewID, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req VisibilityRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := h.reviews.SetHidden(ctx, reviewID, *req.Hidden); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
