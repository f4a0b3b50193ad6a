package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ndlvy/storefront-core/internal/domain/promotion"
)

const findRuleByIDSQL = `SELECT id, name, priority, conditions, actions,
	start_date, end_date, is_active
	FROM promotion_rules WHERE id = $1`

var _ promotion.Repository = (*RuleRepository)(nil)

// RuleRepository implements promotion.Repository backed by PostgreSQL.
// Conditions and actions stay as raw JSONB bytes; the engine parses them.
type RuleRepository struct {
	db DBTX
}

// NewRuleRepository returns a RuleRepository over db.
func NewRuleRepository(db DBTX) *RuleRepository {
	return &RuleRepository{db: db}
}

// FindByID returns the rule or promotion.ErrRuleNotFound.
func (r *RuleRepository) FindByID(ctx context.Context, id int64) (*promotion.Rule, error) {
	var rule promotion.Rule
	err := r.db.QueryRow(ctx, findRuleByIDSQL, id).Scan(
		&rule.ID, &rule.Name, &rule.Priority, &rule.Conditions, &rule.Actions,
		&rule.StartDate, &rule.EndDate, &rule.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrRuleNotFound
		}
		return nil, fmt.Errorf("finding promotion rule %d: %w", id, err)
	}
	return &rule, nil
}
