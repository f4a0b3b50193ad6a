package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndlvy/storefront-core/internal/domain/promo"
)

type validatePromoRequest struct {
	Code      string          `json:"code"`
	CartTotal decimal.Decimal `json:"cartTotal"`
	AccountID *int64          `json:"accountId,omitempty"`
}

type validatePromoResponse struct {
	Valid    bool            `json:"valid"`
	Discount decimal.Decimal `json:"discount"`
	Message  string          `json:"message,omitempty"`
}

// ValidatePromo handles POST /promo/validate. Rejections are a 200 with
// valid=false; only transport and storage failures produce error statuses.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Code == "" {
		badRequest(w, "code is required")
		return
	}

	result, err := h.promoValidator.Validate(r.Context(), promo.NormalizeCode(req.Code), req.CartTotal, req.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validatePromoResponse{
		Valid:    result.Valid,
		Discount: result.Discount,
		Message:  result.Message,
	})
}

type createPromoRequest struct {
	AccountID int64  `json:"accountId"`
	Code      string `json:"code"`
}

type promoCodeResponse struct {
	ID             int64            `json:"id"`
	Code           string           `json:"code"`
	DiscountType   string           `json:"discountType"`
	Value          decimal.Decimal  `json:"value"`
	StartDate      *time.Time       `json:"startDate,omitempty"`
	EndDate        *time.Time       `json:"endDate,omitempty"`
	UsageLimit     int              `json:"usageLimit"`
	UsageCount     int              `json:"usageCount"`
	MinOrderAmount *decimal.Decimal `json:"minOrderAmount,omitempty"`
	OwnerID        *int64           `json:"ownerId,omitempty"`
	Status         string           `json:"status"`
	IsActive       bool             `json:"isActive"`
}

func toPromoCodeResponse(c *promo.PromoCode) promoCodeResponse {
	return promoCodeResponse{
		ID:             c.ID,
		Code:           c.Code,
		DiscountType:   string(c.Type),
		Value:          c.Value,
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		UsageLimit:     c.UsageLimit,
		UsageCount:     c.UsageCount,
		MinOrderAmount: c.MinOrderAmount,
		OwnerID:        c.OwnerID,
		Status:         string(c.Status),
		IsActive:       c.IsActive,
	}
}

// CreatePromoCode handles POST /promo-codes: a customer builds a personal
// code that starts out pending payment.
func (h *Handler) CreatePromoCode(w http.ResponseWriter, r *http.Request) {
	var req createPromoRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.AccountID == 0 {
		badRequest(w, "accountId is required")
		return
	}

	c, err := h.promoService.Create(r.Context(), req.AccountID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPromoCodeResponse(c))
}

type purchasePromoRequest struct {
	AccountID   int64 `json:"accountId"`
	PromoCodeID int64 `json:"promoCodeId"`
}

type purchasePromoResponse struct {
	Promo           promoCodeResponse `json:"promoCode"`
	RemainingPoints int64             `json:"remainingPoints"`
}

// PurchasePromoCode handles POST /promo-codes/purchase: a customer spends
// loyalty points on a purchasable shop code and receives a personal copy.
func (h *Handler) PurchasePromoCode(w http.ResponseWriter, r *http.Request) {
	var req purchasePromoRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.AccountID == 0 || req.PromoCodeID == 0 {
		badRequest(w, "accountId and promoCodeId are required")
		return
	}

	result, err := h.promoService.Purchase(r.Context(), req.PromoCodeID, req.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchasePromoResponse{
		Promo:           toPromoCodeResponse(result.Promo),
		RemainingPoints: result.NewPoints,
	})
}
