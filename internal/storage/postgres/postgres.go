// Package postgres implements the domain repositories over PostgreSQL
// using pgx. All repositories run against a DBTX so the same query code
// serves both pool-level calls and transactional units of work.
package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ndlvy/storefront-core/db"
	"github.com/ndlvy/storefront-core/internal/domain/account"
	"github.com/ndlvy/storefront-core/internal/domain/catalog"
	"github.com/ndlvy/storefront-core/internal/domain/order"
	"github.com/ndlvy/storefront-core/internal/domain/promo"
	"github.com/ndlvy/storefront-core/internal/domain/promotion"
	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// DBTX is the subset of pgx operations the repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries bundles the repositories over a single DBTX. Inside a
// transaction every repository obtained from the same Queries shares
// that transaction.
type Queries struct {
	db DBTX
}

// New returns a Queries running against db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Orders returns the order repository.
func (q *Queries) Orders() order.Repository { return &OrderRepository{db: q.db} }

// Products returns the catalog read surface.
func (q *Queries) Products() catalog.Reader { return &CatalogRepository{db: q.db} }

// Promos returns the promo code repository.
func (q *Queries) Promos() promo.Repository { return &PromoRepository{db: q.db} }

// Accounts returns the account repository.
func (q *Queries) Accounts() account.Repository { return &AccountRepository{db: q.db} }

// Rules returns the promotion rule repository.
func (q *Queries) Rules() promotion.Repository { return &RuleRepository{db: q.db} }

// Catalog returns the promotion side of the catalog: matching products
// and rewriting their pricing.
func (q *Queries) Catalog() promotion.Catalog { return &CatalogRepository{db: q.db} }

// Stock returns the stock-ledger view of the same transaction.
func (q *Queries) Stock() stock.Tx { return stockTx{q: q} }

// stockTx adapts Queries to the stock ledger's transactional interface.
// It is a separate type because the stock package names its accessors
// Catalog and Orders with stock-specific return types.
type stockTx struct {
	q *Queries
}

func (t stockTx) Catalog() stock.Catalog     { return &CatalogRepository{db: t.q.db} }
func (t stockTx) Movements() stock.Movements { return &MovementRepository{db: t.q.db} }
func (t stockTx) Orders() stock.Orders       { return &OrderRepository{db: t.q.db} }

// Store opens transactions over a pgx pool and hands callbacks a Queries
// bound to the transaction. It backs the per-domain Store interfaces.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for non-transactional repositories
// and health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Compile-time checks that Queries satisfies every domain's unit of work.
var (
	_ order.Tx     = (*Queries)(nil)
	_ promo.Tx     = (*Queries)(nil)
	_ promotion.Tx = (*Queries)(nil)
	_ stock.Tx     = stockTx{}
)

// OrderStore adapts Store to order.Store.
type OrderStore struct {
	*Store
}

// InTx runs fn inside a single transaction spanning orders, catalog,
// promo codes and the stock ledger.
func (s OrderStore) InTx(ctx context.Context, fn func(order.Tx) error) error {
	return s.inTx(ctx, func(q *Queries) error { return fn(q) })
}

// PromoStore adapts Store to promo.Store.
type PromoStore struct {
	*Store
}

// InTx runs fn inside a single transaction spanning promo codes and accounts.
func (s PromoStore) InTx(ctx context.Context, fn func(promo.Tx) error) error {
	return s.inTx(ctx, func(q *Queries) error { return fn(q) })
}

// RuleStore adapts Store to promotion.Store.
type RuleStore struct {
	*Store
}

// InTx runs fn inside a single transaction spanning promotion rules and
// the catalog rows they reprice.
func (s RuleStore) InTx(ctx context.Context, fn func(promotion.Tx) error) error {
	return s.inTx(ctx, func(q *Queries) error { return fn(q) })
}

var (
	_ order.Store     = OrderStore{}
	_ promo.Store     = PromoStore{}
	_ promotion.Store = RuleStore{}
)

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
