package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type ruleResultResponse struct {
	RuleID  int64 `json:"ruleId"`
	Updated int   `json:"updated"`
}

// ApplyPromotionRule handles POST /promotion-rules/{id}/apply.
func (h *Handler) ApplyPromotionRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid rule id")
		return
	}

	updated, err := h.engine.Apply(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResultResponse{RuleID: id, Updated: updated})
}

// RevertPromotionRule handles POST /promotion-rules/{id}/revert.
func (h *Handler) RevertPromotionRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid rule id")
		return
	}

	updated, err := h.engine.Revert(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResultResponse{RuleID: id, Updated: updated})
}

const (
	defaultMovementLimit = 100
	maxMovementLimit     = 1000
)

type movementResponse struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"productId"`
	ProductImageID *int64    `json:"productImageId,omitempty"`
	Type           string    `json:"type"`
	Quantity       int       `json:"quantity"`
	PreviousStock  int       `json:"previousStock"`
	NewStock       int       `json:"newStock"`
	Reason         string    `json:"reason,omitempty"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ListStockMovements handles GET /stock-movements, newest first.
func (h *Handler) ListStockMovements(w http.ResponseWriter, r *http.Request) {
	limit := defaultMovementLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxMovementLimit {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	movements, err := h.movements.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:             m.ID,
			ProductID:      m.ProductID,
			ProductImageID: m.ProductImageID,
			Type:           string(m.Type),
			Quantity:       m.Quantity,
			PreviousStock:  m.PreviousStock,
			NewStock:       m.NewStock,
			Reason:         m.Reason,
			Note:           m.Note,
			CreatedAt:      m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
