package account

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no account matches the given id.
	ErrNotFound = errors.New("account not found")
	// ErrInsufficientPoints is returned when a debit exceeds the balance.
	ErrInsufficientPoints = errors.New("insufficient points balance")
)

// Account is a customer account with a loyalty points balance.
type Account struct {
	ID     int64
	Email  string
	Points int64
}

// Repository provides access to customer accounts and their points balance.
type Repository interface {
	// GetByID returns the account or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Account, error)
	// DebitPoints atomically subtracts points from the balance and returns
	// the remaining balance. Returns ErrInsufficientPoints when the balance
	// is too low; the balance is never driven negative.
	DebitPoints(ctx context.Context, id int64, points int64) (int64, error)
}
