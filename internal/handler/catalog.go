package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ndlvy/storefront-core/internal/domain/catalog"
)

type productResponse struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Reference       string           `json:"reference,omitempty"`
	CategoryID      *int64           `json:"categoryId,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	OldPrice        *decimal.Decimal `json:"oldPrice,omitempty"`
	Stock           int              `json:"stock"`
	IsPromotion     bool             `json:"isPromotion"`
	PromotionRuleID *int64           `json:"promotionRuleId,omitempty"`
	IsBestSeller    bool             `json:"isBestSeller"`
	IsNew           bool             `json:"isNew"`
}

func toProductResponse(p catalog.Product) productResponse {
	return productResponse{
		ID:              p.ID,
		Name:            p.Name,
		Reference:       p.Reference,
		CategoryID:      p.CategoryID,
		Price:           p.Price,
		OldPrice:        p.OldPrice,
		Stock:           p.Stock,
		IsPromotion:     p.IsPromotion,
		PromotionRuleID: p.PromotionRuleID,
		IsBestSeller:    p.IsBestSeller,
		IsNew:           p.IsNew,
	}
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct handles GET /products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid product id")
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}
