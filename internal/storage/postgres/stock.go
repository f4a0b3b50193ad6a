package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

const (
	appendMovementSQL = `INSERT INTO stock_movements
		(product_id, product_image_id, movement_type, quantity, previous_stock, new_stock, reason, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	movementColumns = `id, product_id, product_image_id, movement_type, quantity,
		previous_stock, new_stock, reason, note, created_at`

	variantOrderMovementsSQL = `SELECT ` + movementColumns + ` FROM stock_movements
		WHERE movement_type = 'ORDER'
		  AND product_image_id IS NOT NULL
		  AND reason LIKE '%' || $1 || '%'
		ORDER BY id`

	listMovementsSQL = `SELECT ` + movementColumns + ` FROM stock_movements
		ORDER BY id DESC LIMIT $1`
)

var _ stock.Movements = (*MovementRepository)(nil)

// MovementRepository implements the append-only stock movement trail.
type MovementRepository struct {
	db DBTX
}

// NewMovementRepository returns a MovementRepository over db.
func NewMovementRepository(db DBTX) *MovementRepository {
	return &MovementRepository{db: db}
}

// Append inserts an audit row and fills in its generated id and timestamp.
// Movements are never updated or deleted.
func (r *MovementRepository) Append(ctx context.Context, m *stock.Movement) error {
	err := r.db.QueryRow(ctx, appendMovementSQL,
		m.ProductID, m.ProductImageID, string(m.Type), m.Quantity,
		m.PreviousStock, m.NewStock, m.Reason, m.Note,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending stock movement for product %d: %w", m.ProductID, err)
	}
	return nil
}

// VariantOrderMovements returns ORDER-type movements carrying a variant id
// whose reason references the given order reference, oldest first.
func (r *MovementRepository) VariantOrderMovements(ctx context.Context, orderReference string) ([]stock.Movement, error) {
	rows, err := r.db.Query(ctx, variantOrderMovementsSQL, orderReference)
	if err != nil {
		return nil, fmt.Errorf("loading variant movements for order %q: %w", orderReference, err)
	}
	movements, err := pgx.CollectRows(rows, scanMovement)
	if err != nil {
		return nil, fmt.Errorf("loading variant movements for order %q: %w", orderReference, err)
	}
	return movements, nil
}

// List returns the most recent movements, newest first.
func (r *MovementRepository) List(ctx context.Context, limit int) ([]stock.Movement, error) {
	rows, err := r.db.Query(ctx, listMovementsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stock movements: %w", err)
	}
	movements, err := pgx.CollectRows(rows, scanMovement)
	if err != nil {
		return nil, fmt.Errorf("listing stock movements: %w", err)
	}
	return movements, nil
}

func scanMovement(row pgx.CollectableRow) (stock.Movement, error) {
	var (
		m            stock.Movement
		movementType string
	)
	err := row.Scan(
		&m.ID, &m.ProductID, &m.ProductImageID, &movementType, &m.Quantity,
		&m.PreviousStock, &m.NewStock, &m.Reason, &m.Note, &m.CreatedAt,
	)
	m.Type = stock.MovementType(movementType)
	return m, err
}
