// Package handler exposes the domain services over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndlvy/storefront-core/internal/domain/catalog"
	"github.com/ndlvy/storefront-core/internal/domain/order"
	"github.com/ndlvy/storefront-core/internal/domain/promo"
	"github.com/ndlvy/storefront-core/internal/domain/promotion"
	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

// MovementLister is the read surface for the stock movement audit trail.
type MovementLister interface {
	List(ctx context.Context, limit int) ([]stock.Movement, error)
}

// Handler holds the domain services behind the HTTP surface.
type Handler struct {
	products       catalog.Reader
	promoValidator *promo.Validator
	promoService   *promo.Service
	orderService   *order.Service
	coordinator    *order.Coordinator
	engine         *promotion.Engine
	movements      MovementLister
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products catalog.Reader,
	promoValidator *promo.Validator,
	promoService *promo.Service,
	orderService *order.Service,
	coordinator *order.Coordinator,
	engine *promotion.Engine,
	movements MovementLister,
) *Handler {
	return &Handler{
		products:       products,
		promoValidator: promoValidator,
		promoService:   promoService,
		orderService:   orderService,
		coordinator:    coordinator,
		engine:         engine,
		movements:      movements,
	}
}

// Routes builds the API router. Back-office routes sit behind the API key
// guard; the order status route accepts both actors and distinguishes them
// by the presence of a valid key.
func (h *Handler) Routes(guard *APIKeyGuard) http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Post("/promo/validate", h.ValidatePromo)
	r.Post("/promo-codes", h.CreatePromoCode)
	r.Post("/promo-codes/purchase", h.PurchasePromoCode)

	r.Post("/orders", h.PlaceOrder)
	r.With(guard.DetectActor).Patch("/orders/{reference}/status", h.TransitionOrder)

	r.Group(func(r chi.Router) {
		r.Use(guard.Require)
		r.Post("/promotion-rules/{id}/apply", h.ApplyPromotionRule)
		r.Post("/promotion-rules/{id}/revert", h.RevertPromotionRule)
		r.Get("/stock-movements", h.ListStockMovements)
	})

	return r
}
