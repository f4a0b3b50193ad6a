package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ndlvy/storefront-core/internal/domain/order"
	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

const (
	orderColumns = `id, reference, account_id, status, total, discount,
		promo_code, stock_reduced, created_at`

	createOrderSQL = `INSERT INTO orders (reference, account_id, status, total, discount, promo_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, product_image_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	getOrderByReferenceSQL = `SELECT ` + orderColumns + ` FROM orders WHERE reference = $1`

	getOrderByReferenceForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE reference = $1 FOR UPDATE`

	getOrderItemsSQL = `SELECT id, order_id, product_id, product_image_id, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	setOrderStockReducedSQL = `UPDATE orders SET stock_reduced = $2, updated_at = now() WHERE id = $1`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ stock.Orders     = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. It also
// carries the stock ledger's stock_reduced flag updates so both run against
// the same transaction.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository over db.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order and its items, filling in generated ids. A
// unique violation on the reference column maps to order.ErrDuplicateReference
// so the caller can regenerate and retry.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := r.db.QueryRow(ctx, createOrderSQL,
		o.Reference, o.AccountID, string(o.Status), o.Total, o.Discount, o.PromoCode,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "orders_reference_key") {
			return order.ErrDuplicateReference
		}
		return fmt.Errorf("creating order %q: %w", o.Reference, err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := r.db.QueryRow(ctx, createOrderItemSQL,
			o.ID, item.ProductID, item.ProductImageID, item.Quantity, item.Price,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("creating item for order %q: %w", o.Reference, err)
		}
	}
	return nil
}

// GetByReference loads an order with its items, or order.ErrNotFound.
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*order.Order, error) {
	return r.getByReference(ctx, getOrderByReferenceSQL, reference)
}

// GetByReferenceForUpdate is GetByReference holding the order row lock.
func (r *OrderRepository) GetByReferenceForUpdate(ctx context.Context, reference string) (*order.Order, error) {
	return r.getByReference(ctx, getOrderByReferenceForUpdateSQL, reference)
}

func (r *OrderRepository) getByReference(ctx context.Context, query, reference string) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := r.db.QueryRow(ctx, query, reference).Scan(
		&o.ID, &o.Reference, &o.AccountID, &status, &o.Total, &o.Discount,
		&o.PromoCode, &o.StockReduced, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", reference, err)
	}
	o.Status = order.Status(status)

	rows, err := r.db.Query(ctx, getOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", reference, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", reference, err)
	}
	return &o, nil
}

// UpdateStatus writes a new status to the order row.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, s order.Status) error {
	_, err := r.db.Exec(ctx, updateOrderStatusSQL, id, string(s))
	if err != nil {
		return fmt.Errorf("updating status for order %d: %w", id, err)
	}
	return nil
}

// SetStockReduced writes the stock-adjustment idempotency flag.
func (r *OrderRepository) SetStockReduced(ctx context.Context, orderID int64, reduced bool) error {
	_, err := r.db.Exec(ctx, setOrderStockReducedSQL, orderID, reduced)
	if err != nil {
		return fmt.Errorf("setting stock_reduced for order %d: %w", orderID, err)
	}
	return nil
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductImageID, &it.Quantity, &it.Price)
	return it, err
}
