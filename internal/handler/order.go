package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ndlvy/storefront-core/internal/domain/order"
)

type placeOrderRequest struct {
	AccountID *int64             `json:"accountId,omitempty"`
	Items     []orderItemRequest `json:"items"`
	PromoCode string             `json:"promoCode,omitempty"`
}

type orderItemRequest struct {
	ProductID      int64  `json:"productId"`
	ProductImageID *int64 `json:"productImageId,omitempty"`
	Quantity       int    `json:"quantity"`
}

type orderResponse struct {
	Reference    string              `json:"reference"`
	Status       string              `json:"status"`
	Total        decimal.Decimal     `json:"total"`
	Discount     decimal.Decimal     `json:"discount"`
	PromoCode    string              `json:"promoCode,omitempty"`
	StockReduced bool                `json:"stockReduced"`
	Items        []orderItemResponse `json:"items"`
	CreatedAt    time.Time           `json:"createdAt"`
}

type orderItemResponse struct {
	ProductID      int64           `json:"productId"`
	ProductImageID *int64          `json:"productImageId,omitempty"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:      it.ProductID,
			ProductImageID: it.ProductImageID,
			Quantity:       it.Quantity,
			Price:          it.Price,
		})
	}
	return orderResponse{
		Reference:    o.Reference,
		Status:       string(o.Status),
		Total:        o.Total,
		Discount:     o.Discount,
		PromoCode:    o.PromoCode,
		StockReduced: o.StockReduced,
		Items:        items,
		CreatedAt:    o.CreatedAt,
	}
}

// PlaceOrder handles POST /orders. Prices and discounts are computed from
// the catalog server-side; the client only sends product ids and quantities.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	items := make([]order.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.ItemRequest{
			ProductID:      it.ProductID,
			ProductImageID: it.ProductImageID,
			Quantity:       it.Quantity,
		})
	}

	o, err := h.orderService.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		AccountID: req.AccountID,
		Items:     items,
		PromoCode: req.PromoCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

type transitionRequest struct {
	Status string `json:"status"`
}

// TransitionOrder handles PATCH /orders/{reference}/status. Requests with a
// valid API key act as back office; everything else is held to the customer
// transition rules.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	actor := order.ActorCustomer
	if adminFromContext(r.Context()) {
		actor = order.ActorAdmin
	}

	o, err := h.coordinator.Transition(r.Context(), reference, order.Status(req.Status), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
