package promotion

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ndlvy/storefront-core/internal/domain/catalog"
)

// Filter is the targeting filter built from a rule's conditions. When
// InPromotion is set, matching is further restricted to rows currently in a
// discounted state (isPromotion true with a recorded old price).
type Filter struct {
	CategoryID   *int64
	ProductID    *int64
	Reference    *string
	IsBestSeller *bool
	IsNew        *bool
	InPromotion  bool
}

// Pricing is the promotion-related slice of a product or variant row.
type Pricing struct {
	Price           decimal.Decimal
	OldPrice        *decimal.Decimal
	IsPromotion     bool
	PromotionRuleID *int64
}

// Catalog is the mutable catalog surface the engine reprices through. All
// reads lock the returned rows for the duration of the transaction; apply
// and revert are read-modify-write over price fields.
type Catalog interface {
	ProductsMatching(ctx context.Context, f Filter) ([]catalog.Product, error)
	UpdateProductPricing(ctx context.Context, id int64, p Pricing) error
	// MarkProductPromotion flags a parent product as being on promotion
	// without touching its price, so variant-level discounts surface in
	// catalog filtering.
	MarkProductPromotion(ctx context.Context, id, ruleID int64) error
	VariantsByReference(ctx context.Context, reference string, inPromotion bool) ([]catalog.ProductImage, error)
	UpdateVariantPricing(ctx context.Context, id int64, p Pricing) error
}

// Store runs engine operations inside a database transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx groups the repositories bound to one transaction.
type Tx interface {
	Rules() Repository
	Catalog() Catalog
}

// Engine applies and reverts promotion rules over the catalog as a bulk
// repricing. Each operation runs in a single transaction.
type Engine struct {
	store Store
}

// NewEngine creates an Engine over the given transactional store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Apply reprices every catalog row matching the rule's conditions and
// returns the number of rows touched (products plus variant images).
//
// The discount base is the recorded old price when one exists, so applying a
// rule on top of an existing promotion reprices from the original price
// instead of compounding. When two rules overlap the last applied wins; the
// stamped rule id is overwritten silently.
func (e *Engine) Apply(ctx context.Context, ruleID int64) (int, error) {
	var updated int

	err := e.store.InTx(ctx, func(tx Tx) error {
		rule, err := tx.Rules().FindByID(ctx, ruleID)
		if err != nil {
			return err
		}
		if !rule.IsActive {
			return ErrRuleInactive
		}

		cond, err := ParseConditions(rule.Conditions)
		if err != nil {
			return err
		}
		if !cond.HasTarget() {
			return ErrNoTarget
		}

		pct, err := ParsePercentage(rule.Actions)
		if err != nil {
			return err
		}

		cat := tx.Catalog()

		products, err := cat.ProductsMatching(ctx, filterFrom(cond, false))
		if err != nil {
			return err
		}
		for _, p := range products {
			base := p.Price
			if p.OldPrice != nil {
				base = *p.OldPrice
			}
			if err := cat.UpdateProductPricing(ctx, p.ID, Pricing{
				Price:           discounted(base, pct),
				OldPrice:        &base,
				IsPromotion:     true,
				PromotionRuleID: &rule.ID,
			}); err != nil {
				return err
			}
			updated++
		}

		// Reference conditions also target variant rows carrying their own
		// price. The parent product is flagged even when its price stays
		// untouched.
		if cond.Reference != nil {
			variants, err := cat.VariantsByReference(ctx, *cond.Reference, false)
			if err != nil {
				return err
			}
			for _, v := range variants {
				if v.Price == nil {
					continue
				}
				base := *v.Price
				if v.OldPrice != nil {
					base = *v.OldPrice
				}
				if err := cat.UpdateVariantPricing(ctx, v.ID, Pricing{
					Price:           discounted(base, pct),
					OldPrice:        &base,
					IsPromotion:     true,
					PromotionRuleID: &rule.ID,
				}); err != nil {
					return err
				}
				if err := cat.MarkProductPromotion(ctx, v.ProductID, rule.ID); err != nil {
					return err
				}
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Revert restores the original price for every row matching the rule's
// conditions that is currently in a discounted state, and returns the number
// of rows restored. Rows without a recorded old price are left untouched.
//
// Revert is filter-driven rather than ledger-driven: it does not verify that
// this particular rule was the one last applied to a row.
func (e *Engine) Revert(ctx context.Context, ruleID int64) (int, error) {
	var updated int

	err := e.store.InTx(ctx, func(tx Tx) error {
		rule, err := tx.Rules().FindByID(ctx, ruleID)
		if err != nil {
			return err
		}

		cond, err := ParseConditions(rule.Conditions)
		if err != nil {
			return err
		}
		if !cond.HasTarget() {
			return ErrNoTarget
		}

		cat := tx.Catalog()

		products, err := cat.ProductsMatching(ctx, filterFrom(cond, true))
		if err != nil {
			return err
		}
		for _, p := range products {
			if p.OldPrice == nil {
				continue
			}
			if err := cat.UpdateProductPricing(ctx, p.ID, Pricing{
				Price: *p.OldPrice,
			}); err != nil {
				return err
			}
			updated++
		}

		if cond.Reference != nil {
			variants, err := cat.VariantsByReference(ctx, *cond.Reference, true)
			if err != nil {
				return err
			}
			for _, v := range variants {
				if v.OldPrice == nil {
					continue
				}
				if err := cat.UpdateVariantPricing(ctx, v.ID, Pricing{
					Price: *v.OldPrice,
				}); err != nil {
					return err
				}
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func filterFrom(c Conditions, inPromotion bool) Filter {
	return Filter{
		CategoryID:   c.CategoryID,
		ProductID:    c.ProductID,
		Reference:    c.Reference,
		IsBestSeller: c.IsBestSeller,
		IsNew:        c.IsNew,
		InPromotion:  inPromotion,
	}
}

func discounted(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(decimal.NewFromInt(100).Sub(pct)).Div(decimal.NewFromInt(100)).Round(0)
}
