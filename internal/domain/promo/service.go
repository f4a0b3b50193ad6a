package promo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ndlvy/storefront-core/internal/domain/account"
)

// Customer-built codes always start as a 20% percentage discount; the value
// is not client-configurable.
var defaultCreatedValue = decimal.NewFromInt(20)

const suffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Store runs promo mutations inside a database transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx groups the repositories bound to one transaction.
type Tx interface {
	Promos() Repository
	Accounts() account.Repository
}

// Service owns the promo code acquisition flows: customer-built codes and
// points-for-code purchases.
type Service struct {
	store Store
}

// NewService creates a promo Service over the given transactional store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// PurchaseResult is the outcome of a successful points-for-code exchange.
type PurchaseResult struct {
	Promo     *PromoCode
	NewPoints int64
}

// Create builds a personal promo code from customer input. The input is
// normalized to uppercase alphanumerics and must keep at least three
// characters; the code is created PENDING and inactive, activation happens
// elsewhere once the fee is paid.
func (s *Service) Create(ctx context.Context, ownerID int64, rawCode string) (*PromoCode, error) {
	code := normalizeCreatedCode(rawCode)
	if len(code) < 3 {
		return nil, ErrCodeTooShort
	}

	c := &PromoCode{
		Code:     code,
		Type:     DiscountPercentage,
		Value:    defaultCreatedValue,
		OwnerID:  &ownerID,
		Status:   StatusPending,
		IsActive: false,
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		taken, err := tx.Promos().CodeExists(ctx, code)
		if err != nil {
			return errors.Wrap(err, "check code")
		}
		if taken {
			return ErrDuplicateCode
		}
		return tx.Promos().Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Purchase exchanges loyalty points for a personal clone of a shop code.
// The buyer's balance is debited by the code's points price and a derived
// single-use code owned by the buyer is created, atomically.
func (s *Service) Purchase(ctx context.Context, promoCodeID, buyerID int64) (*PurchaseResult, error) {
	var result PurchaseResult

	err := s.store.InTx(ctx, func(tx Tx) error {
		orig, err := tx.Promos().FindByID(ctx, promoCodeID)
		if err != nil {
			return err
		}
		if orig.CostPoints == nil || orig.OwnerID != nil {
			return ErrNotPurchasable
		}

		remaining, err := tx.Accounts().DebitPoints(ctx, buyerID, *orig.CostPoints)
		if err != nil {
			return err
		}
		result.NewPoints = remaining

		// The clone mirrors the original's terms; only ownership, the
		// single-use limit and the (dropped) points price differ.
		clone := &PromoCode{
			Type:           orig.Type,
			Value:          orig.Value,
			StartDate:      orig.StartDate,
			EndDate:        orig.EndDate,
			UsageLimit:     1,
			MinOrderAmount: orig.MinOrderAmount,
			OwnerID:        &buyerID,
			Status:         StatusActive,
			IsActive:       true,
		}

		// Random suffix collisions are rare but possible; retry a few times
		// before giving up.
		for attempt := 0; attempt < 5; attempt++ {
			clone.Code = derivedCode(orig.Code)
			err = tx.Promos().Create(ctx, clone)
			if err == nil {
				result.Promo = clone
				return nil
			}
			if !errors.Is(err, ErrDuplicateCode) {
				return err
			}
		}
		return errors.Wrap(err, "derive unique code")
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func derivedCode(original string) string {
	suffix := make([]byte, 5)
	for i := range suffix {
		suffix[i] = suffixAlphabet[rand.IntN(len(suffixAlphabet))]
	}
	return fmt.Sprintf("MY-%s-%s", original, suffix)
}

func normalizeCreatedCode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			r = unicode.ToUpper(r)
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
