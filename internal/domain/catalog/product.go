package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product or variant does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry. Price and Stock are mutated by independent
// flows (promotion repricing vs. stock adjustment), so persistence
// implementations must lock the row before a read-modify-write of either.
type Product struct {
	ID              int64
	Name            string
	Reference       string
	CategoryID      *int64
	Price           decimal.Decimal
	OldPrice        *decimal.Decimal
	Stock           int
	IsPromotion     bool
	PromotionRuleID *int64
	IsBestSeller    bool
	IsNew           bool
}

// ProductImage is a product variant. A nil Price or Stock means the variant
// inherits the parent product's value and is not priced or stocked on its own.
type ProductImage struct {
	ID              int64
	ProductID       int64
	Color           string
	Reference       string
	Price           *decimal.Decimal
	OldPrice        *decimal.Decimal
	Stock           *int
	IsPromotion     bool
	PromotionRuleID *int64
}

// Reader provides read access to the catalog.
type Reader interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}
