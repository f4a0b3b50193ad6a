package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ndlvy/storefront-core/internal/domain/account"
)

const (
	getAccountByIDSQL = `SELECT id, email, points FROM accounts WHERE id = $1`

	debitAccountPointsSQL = `UPDATE accounts SET points = points - $2
		WHERE id = $1 AND points >= $2
		RETURNING points`

	accountExistsSQL = `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`
)

var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository implements account.Repository backed by PostgreSQL.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository returns an AccountRepository over db.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID returns the account or account.ErrNotFound.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	var a account.Account
	err := r.db.QueryRow(ctx, getAccountByIDSQL, id).Scan(&a.ID, &a.Email, &a.Points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("finding account %d: %w", id, err)
	}
	return &a, nil
}

// DebitPoints subtracts points from the balance in a single guarded UPDATE,
// so the balance can never go negative even under concurrent debits.
func (r *AccountRepository) DebitPoints(ctx context.Context, id int64, points int64) (int64, error) {
	var remaining int64
	err := r.db.QueryRow(ctx, debitAccountPointsSQL, id, points).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debiting %d points from account %d: %w", points, id, err)
	}

	// The guarded update matched nothing: either the account is missing
	// or the balance is too low.
	var exists bool
	if err := r.db.QueryRow(ctx, accountExistsSQL, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking account %d: %w", id, err)
	}
	if !exists {
		return 0, account.ErrNotFound
	}
	return 0, account.ErrInsufficientPoints
}
