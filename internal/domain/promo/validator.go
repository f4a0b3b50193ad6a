package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Result is the outcome of validating a promo code against a cart total.
// A rejected code is a normal outcome, not an error: Valid is false and
// Message carries the user-facing reason.
type Result struct {
	Valid    bool
	Discount decimal.Decimal
	Message  string
}

func reject(message string) *Result {
	return &Result{Valid: false, Discount: decimal.Zero, Message: message}
}

// Validator checks promo codes against the ledger. Only persistence failures
// surface as errors; every business rejection comes back as a Result.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure, and computes the discount when all pass. requesterID is the
// authenticated customer, nil for guests; personal codes are rejected for
// anyone but their owner.
func (v *Validator) Validate(ctx context.Context, code string, cartTotal decimal.Decimal, requesterID *int64) (*Result, error) {
	c, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject("promo code not found"), nil
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}

	if c.OwnerID != nil && (requesterID == nil || *requesterID != *c.OwnerID) {
		return reject("this promo code belongs to another customer"), nil
	}

	if c.Status == StatusPending {
		return reject("promo code is awaiting payment"), nil
	}

	if !c.IsActive {
		return reject("promo code is no longer active"), nil
	}

	now := v.now()
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return reject("promo code is not valid yet"), nil
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return reject("promo code has expired"), nil
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return reject("promo code usage limit reached"), nil
	}

	if c.MinOrderAmount != nil && cartTotal.LessThan(*c.MinOrderAmount) {
		return reject(fmt.Sprintf("order must be at least %s to use this code", c.MinOrderAmount.StringFixed(0))), nil
	}

	return &Result{
		Valid:    true,
		Discount: Compute(c, cartTotal),
		Message:  "promo code applied",
	}, nil
}
