package promo

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported promo code discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the cart total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount applies a fixed monetary discount capped at the cart total.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Status is the lifecycle state of an owner-created promo code. Shop-wide
// codes are created ACTIVE; customer-built codes start PENDING until the
// activation fee is paid.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

var (
	// ErrNotFound is returned when no promo code matches the given code string.
	ErrNotFound = errors.New("promo code not found")
	// ErrDuplicateCode is returned when a code string already exists. Codes
	// live in one flat namespace regardless of owner.
	ErrDuplicateCode = errors.New("promo code already exists")
	// ErrCodeTooShort is returned when a customer-built code normalizes to
	// fewer than three characters.
	ErrCodeTooShort = errors.New("promo code must be at least 3 characters")
	// ErrNotPurchasable is returned when a purchase targets a code that has
	// no points price or is already personally owned.
	ErrNotPurchasable = errors.New("promo code is not purchasable")
	// ErrUsageLimitReached is returned by IncrementUsage when the counter is
	// already at the code's usage limit.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
)

// PromoCode is a redeemable discount token, either shop-wide (OwnerID nil)
// or personal (OwnerID set, redeemable only by that owner).
type PromoCode struct {
	ID             int64
	Code           string
	Type           DiscountType
	Value          decimal.Decimal
	StartDate      *time.Time
	EndDate        *time.Time
	UsageLimit     int // 0 means unlimited
	UsageCount     int
	MinOrderAmount *decimal.Decimal
	OwnerID        *int64
	Status         Status
	IsActive       bool
	CostPoints     *int64
	CreatedAt      time.Time
}

// Repository provides lookup and mutation of promo codes.
type Repository interface {
	// FindByCode looks up a code by its normalized string.
	// Returns ErrNotFound when no such code exists.
	FindByCode(ctx context.Context, code string) (*PromoCode, error)
	// FindByID looks up a code by primary key. Returns ErrNotFound.
	FindByID(ctx context.Context, id int64) (*PromoCode, error)
	// Create persists a new code. Returns ErrDuplicateCode when the code
	// string collides with any existing code.
	Create(ctx context.Context, c *PromoCode) error
	// IncrementUsage bumps the usage counter by one. The bump and the limit
	// check are a single guarded write so concurrent redemptions cannot
	// overrun the limit; returns ErrUsageLimitReached when the counter is
	// already at the limit.
	IncrementUsage(ctx context.Context, id int64) error
	// CodeExists reports whether a normalized code string is already taken.
	CodeExists(ctx context.Context, code string) (bool, error)
}

// NormalizeCode maps user input onto the canonical code form: uppercase with
// all whitespace stripped. Lookup and storage both use this form.
func NormalizeCode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
