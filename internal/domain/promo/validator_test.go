package promo

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPromoRepo struct {
	byCode map[string]*PromoCode
	err    error
}

func (m *mockPromoRepo) FindByCode(_ context.Context, code string) (*PromoCode, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockPromoRepo) FindByID(_ context.Context, _ int64) (*PromoCode, error) {
	return nil, ErrNotFound
}

func (m *mockPromoRepo) Create(_ context.Context, _ *PromoCode) error { return nil }

func (m *mockPromoRepo) IncrementUsage(_ context.Context, _ int64) error { return nil }

func (m *mockPromoRepo) CodeExists(_ context.Context, _ string) (bool, error) { return false, nil }

func int64Ptr(v int64) *int64 { return &v }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	active := func(c PromoCode) *PromoCode {
		c.Status = StatusActive
		c.IsActive = true
		return &c
	}

	tests := []struct {
		name         string
		code         *PromoCode
		lookupCode   string
		cartTotal    int64
		requesterID  *int64
		wantValid    bool
		wantDiscount int64
		wantMessage  string
	}{
		{
			name:         "active percentage code",
			code:         active(PromoCode{Code: "SAVE10", Type: DiscountPercentage, Value: decimal.NewFromInt(10)}),
			lookupCode:   "SAVE10",
			cartTotal:    10000,
			wantValid:    true,
			wantDiscount: 1000,
		},
		{
			name:        "unknown code",
			lookupCode:  "BOGUS",
			cartTotal:   10000,
			wantMessage: "promo code not found",
		},
		{
			name:         "code is normalized before lookup",
			code:         active(PromoCode{Code: "SAVE10", Type: DiscountPercentage, Value: decimal.NewFromInt(10)}),
			lookupCode:   " save10 ",
			cartTotal:    10000,
			wantValid:    true,
			wantDiscount: 1000,
		},
		{
			name:        "personal code rejected for guest",
			code:        active(PromoCode{Code: "MINE", Type: DiscountPercentage, Value: decimal.NewFromInt(20), OwnerID: int64Ptr(7)}),
			lookupCode:  "MINE",
			cartTotal:   5000,
			wantMessage: "this promo code belongs to another customer",
		},
		{
			name:        "personal code rejected for another customer",
			code:        active(PromoCode{Code: "MINE", Type: DiscountPercentage, Value: decimal.NewFromInt(20), OwnerID: int64Ptr(7)}),
			lookupCode:  "MINE",
			cartTotal:   5000,
			requesterID: int64Ptr(8),
			wantMessage: "this promo code belongs to another customer",
		},
		{
			name:         "personal code accepted for owner",
			code:         active(PromoCode{Code: "MINE", Type: DiscountPercentage, Value: decimal.NewFromInt(20), OwnerID: int64Ptr(7)}),
			lookupCode:   "MINE",
			cartTotal:    5000,
			requesterID:  int64Ptr(7),
			wantValid:    true,
			wantDiscount: 1000,
		},
		{
			name:        "pending code awaiting payment",
			code:        &PromoCode{Code: "PEND", Type: DiscountPercentage, Value: decimal.NewFromInt(20), Status: StatusPending},
			lookupCode:  "PEND",
			cartTotal:   5000,
			wantMessage: "promo code is awaiting payment",
		},
		{
			name:        "deactivated code",
			code:        &PromoCode{Code: "OFF", Type: DiscountPercentage, Value: decimal.NewFromInt(20), Status: StatusActive, IsActive: false},
			lookupCode:  "OFF",
			cartTotal:   5000,
			wantMessage: "promo code is no longer active",
		},
		{
			name:        "not valid yet",
			code:        active(PromoCode{Code: "SOON", Type: DiscountPercentage, Value: decimal.NewFromInt(20), StartDate: &futureTime}),
			lookupCode:  "SOON",
			cartTotal:   5000,
			wantMessage: "promo code is not valid yet",
		},
		{
			name:        "expired",
			code:        active(PromoCode{Code: "OLD", Type: DiscountPercentage, Value: decimal.NewFromInt(20), EndDate: &pastTime}),
			lookupCode:  "OLD",
			cartTotal:   5000,
			wantMessage: "promo code has expired",
		},
		{
			name:        "usage limit reached",
			code:        active(PromoCode{Code: "FULL", Type: DiscountPercentage, Value: decimal.NewFromInt(20), UsageLimit: 3, UsageCount: 3}),
			lookupCode:  "FULL",
			cartTotal:   5000,
			wantMessage: "promo code usage limit reached",
		},
		{
			name:         "one use left",
			code:         active(PromoCode{Code: "LAST", Type: DiscountPercentage, Value: decimal.NewFromInt(20), UsageLimit: 3, UsageCount: 2}),
			lookupCode:   "LAST",
			cartTotal:    5000,
			wantValid:    true,
			wantDiscount: 1000,
		},
		{
			name:         "zero limit means unlimited",
			code:         active(PromoCode{Code: "EVER", Type: DiscountPercentage, Value: decimal.NewFromInt(20), UsageCount: 100000}),
			lookupCode:   "EVER",
			cartTotal:    5000,
			wantValid:    true,
			wantDiscount: 1000,
		},
		{
			name:        "below minimum order amount",
			code:        active(PromoCode{Code: "BIG", Type: DiscountFixedAmount, Value: decimal.NewFromInt(5000), MinOrderAmount: decPtr(30000)}),
			lookupCode:  "BIG",
			cartTotal:   10000,
			wantMessage: "order must be at least 30000 to use this code",
		},
		{
			name:         "exactly minimum order amount",
			code:         active(PromoCode{Code: "BIG", Type: DiscountFixedAmount, Value: decimal.NewFromInt(5000), MinOrderAmount: decPtr(30000)}),
			lookupCode:   "BIG",
			cartTotal:    30000,
			wantValid:    true,
			wantDiscount: 5000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPromoRepo{byCode: map[string]*PromoCode{}}
			if tt.code != nil {
				repo.byCode[tt.code.Code] = tt.code
			}

			v := NewValidator(repo)
			v.now = func() time.Time { return fixedNow }

			result, err := v.Validate(context.Background(), tt.lookupCode, decimal.NewFromInt(tt.cartTotal), tt.requesterID)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, result.Valid)
			if tt.wantValid {
				assert.True(t, result.Discount.Equal(decimal.NewFromInt(tt.wantDiscount)),
					"discount: got %s, want %d", result.Discount, tt.wantDiscount)
			} else {
				assert.Equal(t, tt.wantMessage, result.Message)
				assert.True(t, result.Discount.IsZero())
			}
		})
	}
}

func TestValidator_RepoError(t *testing.T) {
	repoErr := errors.New("connection lost")
	v := NewValidator(&mockPromoRepo{err: repoErr})

	_, err := v.Validate(context.Background(), "ANY", decimal.NewFromInt(100), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repoErr))
}
