package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// statusRank orders the forward fulfillment chain. CANCELLED sits outside it.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
	StatusCompleted:  4,
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

var (
	// ErrNotFound is returned when no order matches the given reference.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateReference is returned when a generated order reference
	// collides with an existing one.
	ErrDuplicateReference = errors.New("order reference already exists")
)

// Order is a customer order. Item prices, the discount, and the promo code
// string are snapshotted at creation time and immutable thereafter.
type Order struct {
	ID           int64
	Reference    string
	AccountID    *int64
	Status       Status
	Total        decimal.Decimal
	Discount     decimal.Decimal
	PromoCode    string
	StockReduced bool
	Items        []Item
	CreatedAt    time.Time
}

// Item is a single order line. ProductImageID is set when the customer chose
// a specific variant.
type Item struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	ProductImageID *int64
	Quantity       int
	Price          decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order and its items. Returns
	// ErrDuplicateReference when the reference is taken.
	Create(ctx context.Context, o *Order) error
	// GetByReference loads an order with its items, or ErrNotFound.
	GetByReference(ctx context.Context, reference string) (*Order, error)
	// GetByReferenceForUpdate is GetByReference holding the order row lock
	// for the duration of the transaction.
	GetByReferenceForUpdate(ctx context.Context, reference string) (*Order, error)
	// UpdateStatus writes a new status to the order row.
	UpdateStatus(ctx context.Context, id int64, s Status) error
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReference builds a human-readable order reference from the date plus a
// random suffix. Uniqueness is enforced at the storage layer; callers retry
// on collision.
func NewReference(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = referenceAlphabet[rand.IntN(len(referenceAlphabet))]
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
