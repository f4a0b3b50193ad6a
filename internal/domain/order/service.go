package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ndlvy/storefront-core/internal/domain/catalog"
	"github.com/ndlvy/storefront-core/internal/domain/promo"
	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

// Sentinel errors for order placement validation.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// PromoRejectedError indicates the submitted promo code failed validation at
// order time. Message is user-facing.
type PromoRejectedError struct {
	Message string
}

func (e *PromoRejectedError) Error() string {
	return e.Message
}

// Store runs order operations inside a database transaction.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx groups the repositories bound to one transaction.
type Tx interface {
	Orders() Repository
	Products() catalog.Reader
	Promos() promo.Repository
	Stock() stock.Tx
}

// PlaceOrderRequest holds the input for placing an order. The client never
// submits prices or a discount amount; both are derived server-side.
type PlaceOrderRequest struct {
	AccountID *int64
	Items     []ItemRequest
	PromoCode string
}

// ItemRequest is one requested order line.
type ItemRequest struct {
	ProductID      int64
	ProductImageID *int64
	Quantity       int
}

// Service encapsulates order placement business logic.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an order Service over the given transactional store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// PlaceOrder validates items, snapshots catalog prices, recomputes the promo
// discount from the stored code, and persists the order as PENDING with
// stock untouched. The promo usage counter is incremented in the same
// transaction as the order insert.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	o := &Order{
		AccountID: req.AccountID,
		Status:    StatusPending,
		PromoCode: promo.NormalizeCode(req.PromoCode),
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		fetched, err := tx.Products().GetByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		productMap := make(map[int64]catalog.Product, len(fetched))
		for _, p := range fetched {
			productMap[p.ID] = p
		}

		subtotal := decimal.Zero
		o.Items = make([]Item, len(req.Items))
		for i, item := range req.Items {
			p, ok := productMap[item.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: item.ProductID}
			}
			o.Items[i] = Item{
				ProductID:      item.ProductID,
				ProductImageID: item.ProductImageID,
				Quantity:       item.Quantity,
				Price:          p.Price,
			}
			subtotal = subtotal.Add(o.Items[i].Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		o.Discount = decimal.Zero
		if o.PromoCode != "" {
			discount, err := applyPromo(ctx, tx, o.PromoCode, subtotal, req.AccountID)
			if err != nil {
				return err
			}
			o.Discount = discount
		}

		o.Total = subtotal.Sub(o.Discount)
		if o.Total.IsNegative() {
			o.Total = decimal.Zero
		}

		// Reference collisions are rare; retry with a fresh suffix a few
		// times before treating it as a fault.
		for attempt := 0; attempt < 5; attempt++ {
			o.Reference = NewReference(s.now())
			err = tx.Orders().Create(ctx, o)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrDuplicateReference) {
				return errors.Wrap(err, "create order")
			}
		}
		return errors.Wrap(err, "generate unique reference")
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// applyPromo re-validates the stored code against the server-computed
// subtotal and bumps its usage counter. The client-submitted discount value
// is display-only and never reaches this path.
func applyPromo(ctx context.Context, tx Tx, code string, subtotal decimal.Decimal, accountID *int64) (decimal.Decimal, error) {
	result, err := promo.NewValidator(tx.Promos()).Validate(ctx, code, subtotal, accountID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "validate promo")
	}
	if !result.Valid {
		return decimal.Zero, &PromoRejectedError{Message: result.Message}
	}

	c, err := tx.Promos().FindByCode(ctx, code)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "reload promo")
	}
	// The guarded increment is the authority on the usage limit: the
	// validator's check ran against a snapshot, and a concurrent order may
	// have taken the last slot since.
	if err := tx.Promos().IncrementUsage(ctx, c.ID); err != nil {
		if errors.Is(err, promo.ErrUsageLimitReached) {
			return decimal.Zero, &PromoRejectedError{Message: "promo code usage limit reached"}
		}
		return decimal.Zero, errors.Wrap(err, "increment promo usage")
	}
	return result.Discount, nil
}
