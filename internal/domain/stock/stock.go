package stock

import (
	"context"
	"time"

	"github.com/ndlvy/storefront-core/internal/domain/catalog"
)

// MovementType classifies a stock movement.
type MovementType string

const (
	// MovementOrder is an inventory debit caused by order fulfillment.
	MovementOrder MovementType = "ORDER"
	// MovementReturn is an inventory credit caused by order cancellation.
	MovementReturn MovementType = "RETURN"
)

// Movement is one append-only audit row. Quantity is signed: negative for
// debits, positive for credits. Rows are never updated or deleted.
type Movement struct {
	ID             int64
	ProductID      int64
	ProductImageID *int64
	Type           MovementType
	Quantity       int
	PreviousStock  int
	NewStock       int
	Reason         string
	Note           string
	CreatedAt      time.Time
}

// OrderLine is the slice of an order item the ledger needs.
type OrderLine struct {
	ProductID      int64
	ProductImageID *int64
	Quantity       int
}

// OrderRef identifies the order a stock adjustment belongs to, along with
// the idempotency flag guarding the adjustment.
type OrderRef struct {
	ID           int64
	Reference    string
	StockReduced bool
	Lines        []OrderLine
}

// Catalog is the row-locked stock surface the ledger mutates through.
// ForUpdate reads must hold the row lock until the enclosing transaction
// ends; stock adjustment is a read-modify-write.
type Catalog interface {
	ProductStockForUpdate(ctx context.Context, id int64) (int, error)
	SetProductStock(ctx context.Context, id int64, stock int) error
	// VariantForUpdate locks and returns a single variant row.
	VariantForUpdate(ctx context.Context, id int64) (*catalog.ProductImage, error)
	// VariantsForUpdate locks and returns a product's variant rows in
	// ascending id order.
	VariantsForUpdate(ctx context.Context, productID int64) ([]catalog.ProductImage, error)
	SetVariantStock(ctx context.Context, id int64, stock int) error
}

// Movements is the append-only audit trail.
type Movements interface {
	Append(ctx context.Context, m *Movement) error
	// VariantOrderMovements returns prior ORDER-type movements that carry a
	// variant id and whose reason references the given order reference.
	VariantOrderMovements(ctx context.Context, orderReference string) ([]Movement, error)
}

// Orders updates the idempotency flag on the order row. Implementations must
// read and set the flag inside the same transaction, holding the order row
// lock, so racing transitions cannot both pass the guard.
type Orders interface {
	SetStockReduced(ctx context.Context, orderID int64, reduced bool) error
}

// Tx groups the repositories bound to one transaction. The ledger never owns
// the transaction; the order status coordinator does.
type Tx interface {
	Catalog() Catalog
	Movements() Movements
	Orders() Orders
}
