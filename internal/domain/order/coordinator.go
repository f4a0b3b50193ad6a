package order

import (
	"context"
	"fmt"

	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

// Actor identifies who is requesting a status transition. Customers get a
// narrower transition set than back-office staff.
type Actor int

const (
	ActorAdmin Actor = iota
	ActorCustomer
)

// ErrInvalidStatus is returned for an unknown target status.
var ErrInvalidStatus = fmt.Errorf("invalid order status")

// TransitionError indicates a status change the state machine does not allow.
type TransitionError struct {
	From, To Status
	Actor    Actor
}

func (e *TransitionError) Error() string {
	if e.Actor == ActorCustomer {
		return fmt.Sprintf("customers cannot move an order from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Coordinator transitions order statuses and drives the stock ledger side
// effects. The status write and the stock adjustment share one transaction:
// a failure in either rolls back both.
type Coordinator struct {
	store Store
}

// NewCoordinator creates a Coordinator over the given transactional store.
func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

// Transition moves the order identified by reference into the target status.
// Entering DELIVERED or COMPLETED reduces stock; entering CANCELLED
// replenishes it. Both are idempotent behind the order's stockReduced flag,
// so DELIVERED followed by COMPLETED debits stock exactly once.
//
// A transition to the order's current status is an idempotent no-op.
func (c *Coordinator) Transition(ctx context.Context, reference string, to Status, actor Actor) (*Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	var out *Order
	err := c.store.InTx(ctx, func(tx Tx) error {
		// The row lock on the order serializes racing transitions; the
		// stockReduced guard is only safe when read under it.
		o, err := tx.Orders().GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		out = o

		if o.Status == to {
			return nil
		}
		if !allowed(o.Status, to, actor) {
			return &TransitionError{From: o.Status, To: to, Actor: actor}
		}

		if err := tx.Orders().UpdateStatus(ctx, o.ID, to); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		o.Status = to

		ref := &stock.OrderRef{
			ID:           o.ID,
			Reference:    o.Reference,
			StockReduced: o.StockReduced,
			Lines:        stockLines(o.Items),
		}
		switch to {
		case StatusDelivered, StatusCompleted:
			if err := stock.Reduce(ctx, tx.Stock(), ref); err != nil {
				return fmt.Errorf("reduce stock: %w", err)
			}
		case StatusCancelled:
			if err := stock.Replenish(ctx, tx.Stock(), ref); err != nil {
				return fmt.Errorf("replenish stock: %w", err)
			}
		}
		o.StockReduced = ref.StockReduced
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// allowed implements the transition matrix. Admins move orders forward along
// the fulfillment chain and may cancel from any state; customers may only
// cancel early or confirm receipt.
func allowed(from, to Status, actor Actor) bool {
	if from == StatusCancelled {
		return false
	}

	if actor == ActorCustomer {
		switch to {
		case StatusCancelled:
			return from == StatusPending || from == StatusProcessing
		case StatusCompleted:
			return from == StatusShipped || from == StatusDelivered
		default:
			return false
		}
	}

	if to == StatusCancelled {
		return true
	}
	return statusRank[to] > statusRank[from]
}

func stockLines(items []Item) []stock.OrderLine {
	lines := make([]stock.OrderLine, len(items))
	for i, it := range items {
		lines[i] = stock.OrderLine{
			ProductID:      it.ProductID,
			ProductImageID: it.ProductImageID,
			Quantity:       it.Quantity,
		}
	}
	return lines
}
