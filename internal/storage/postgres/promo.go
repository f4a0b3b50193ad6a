package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ndlvy/storefront-core/internal/domain/promo"
)

const (
	promoColumns = `id, code, discount_type, value, start_date, end_date,
		usage_limit, usage_count, min_order_amount, owner_id, status,
		is_active, cost_points, created_at`

	findPromoByCodeSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE code = $1`

	findPromoByIDSQL = `SELECT ` + promoColumns + ` FROM promo_codes WHERE id = $1`

	createPromoSQL = `INSERT INTO promo_codes (code, discount_type, value, start_date,
		end_date, usage_limit, min_order_amount, owner_id, status, is_active, cost_points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	incrementPromoUsageSQL = `UPDATE promo_codes SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`

	promoCodeExistsSQL = `SELECT EXISTS (SELECT 1 FROM promo_codes WHERE code = $1)`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	db DBTX
}

// NewPromoRepository returns a PromoRepository over db.
func NewPromoRepository(db DBTX) *PromoRepository {
	return &PromoRepository{db: db}
}

// FindByCode looks up a promo code by its exact (normalized) code string.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.PromoCode, error) {
	rows, err := r.db.Query(ctx, findPromoByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanPromoCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}
	return &c, nil
}

// FindByID looks up a promo code by primary key.
func (r *PromoRepository) FindByID(ctx context.Context, id int64) (*promo.PromoCode, error) {
	rows, err := r.db.Query(ctx, findPromoByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding promo code %d: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanPromoCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo code %d: %w", id, err)
	}
	return &c, nil
}

// Create persists a new promo code and fills in its generated id and
// creation time. A unique violation on the code column maps to
// promo.ErrDuplicateCode.
func (r *PromoRepository) Create(ctx context.Context, c *promo.PromoCode) error {
	err := r.db.QueryRow(ctx, createPromoSQL,
		c.Code, string(c.Type), c.Value, c.StartDate, c.EndDate,
		c.UsageLimit, c.MinOrderAmount, c.OwnerID, string(c.Status),
		c.IsActive, c.CostPoints,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "promo_codes_code_key") {
			return promo.ErrDuplicateCode
		}
		return fmt.Errorf("creating promo code %q: %w", c.Code, err)
	}
	return nil
}

// IncrementUsage atomically bumps the usage counter. The limit check lives
// in the UPDATE's WHERE clause, so two transactions racing on the last slot
// of a limited code serialize on the row and only one of them wins.
func (r *PromoRepository) IncrementUsage(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, incrementPromoUsageSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing usage for promo code %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrUsageLimitReached
	}
	return nil
}

// CodeExists reports whether a code string is already taken.
func (r *PromoRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, promoCodeExistsSQL, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking promo code %q: %w", code, err)
	}
	return exists, nil
}

func scanPromoCode(row pgx.CollectableRow) (promo.PromoCode, error) {
	var (
		c              promo.PromoCode
		discountType   string
		status         string
		startDate      *time.Time
		endDate        *time.Time
		minOrderAmount *decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &startDate, &endDate,
		&c.UsageLimit, &c.UsageCount, &minOrderAmount, &c.OwnerID, &status,
		&c.IsActive, &c.CostPoints, &c.CreatedAt,
	)
	c.Type = promo.DiscountType(discountType)
	c.Status = promo.Status(status)
	c.StartDate = startDate
	c.EndDate = endDate
	c.MinOrderAmount = minOrderAmount
	return c, err
}
