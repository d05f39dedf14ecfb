package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/fjod/farmstand/internal/domain"
	"github.com/fjod/farmstand/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxRequestBodySize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// decodeJSON reads a size-limited body into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidInput, err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidInput, name)
	}
	return id, nil
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// ordered: the first matching kind wins
var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrSessionRequired, http.StatusBadRequest, "session_required"},
	{domain.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{domain.ErrReasonRequired, http.StatusBadRequest, "reason_required"},
	{domain.ErrResponseTooShort, http.StatusBadRequest, "response_too_short"},
	{domain.ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
	{domain.ErrInvalidRating, http.StatusBadRequest, "invalid_rating"},
	{domain.ErrAmountMismatch, http.StatusBadRequest, "amount_mismatch"},
	{domain.ErrSignatureInvalid, http.StatusBadRequest, "signature_invalid"},
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrReviewNotFound, http.StatusNotFound, "review_not_found"},
	{domain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{domain.ErrCartVersionConflict, http.StatusConflict, "cart_version_conflict"},
	{domain.ErrAlreadyVerified, http.StatusConflict, "already_verified"},
	{domain.ErrTerminalState, http.StatusConflict, "terminal_state"},
	{domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{repository.ErrStaleOrder, http.StatusConflict, "concurrent_update"},
	{repository.ErrDuplicateReview, http.StatusConflict, "duplicate_review"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrNotEligible, http.StatusForbidden, "not_eligible"},
	{domain.ErrPaymentInit, http.StatusBadGateway, "payment_init_failed"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// handleServiceError converts service errors to HTTP responses. Unknown
// errors are logged and answered with a generic 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		resp := ErrorResponse{Error: m.err.Error(), Code: m.code}
		switch m.err {
		case domain.ErrInvalidInput:
			resp.Error = err.Error()
		case domain.ErrInsufficientStock:
			var stockErr *domain.InsufficientStockError
			if errors.As(err, &stockErr) {
				resp.Error = stockErr.Error()
				resp.Details = map[string]any{
					"product_id": stockErr.ProductID,
					"requested":  stockErr.Requested,
					"available":  stockErr.Available,
				}
			}
		}
		respondJSON(w, m.status, resp)
		return
	}

	slog.ErrorContext(r.Context(), "unhandled service error", "request_id", getRequestID(r.Context()),
		"method", r.Method, "path", r.URL.Path, "error", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
