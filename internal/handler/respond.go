package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ndlvy/storefront-core/internal/domain/account"
	"github.com/ndlvy/storefront-core/internal/domain/catalog"
	"github.com/ndlvy/storefront-core/internal/domain/order"
	"github.com/ndlvy/storefront-core/internal/domain/promo"
	"github.com/ndlvy/storefront-core/internal/domain/promotion"
)

// errorResponse is the JSON shape of every error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeJSON(w, code, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// statusForError maps domain errors to HTTP status codes. Anything unmapped
// is a 500.
func statusForError(err error) int {
	var (
		productNotFound *order.ProductNotFoundError
		invalidQuantity *order.InvalidQuantityError
		promoRejected   *order.PromoRejectedError
		transition      *order.TransitionError
	)

	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, promo.ErrNotFound),
		errors.Is(err, promotion.ErrRuleNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.As(err, &productNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidStatus),
		errors.As(err, &invalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, promo.ErrCodeTooShort),
		errors.Is(err, promotion.ErrNoTarget),
		errors.Is(err, promotion.ErrNoDiscount),
		errors.As(err, &promoRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, promo.ErrDuplicateCode),
		errors.Is(err, promo.ErrNotPurchasable),
		errors.Is(err, promotion.ErrRuleInactive),
		errors.Is(err, account.ErrInsufficientPoints),
		errors.As(err, &transition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
