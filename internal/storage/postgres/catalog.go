package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/ndlvy/storefront-core/internal/domain/catalog"
	"github.com/ndlvy/storefront-core/internal/domain/promotion"
	"github.com/ndlvy/storefront-core/internal/domain/stock"
)

const (
	productColumns = `id, name, reference, category_id, price, old_price, stock,
		is_promotion, promotion_rule_id, is_best_seller, is_new`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	updateProductPricingSQL = `UPDATE products
		SET price = $2, old_price = $3, is_promotion = $4, promotion_rule_id = $5
		WHERE id = $1`

	markProductPromotionSQL = `UPDATE products
		SET is_promotion = TRUE, promotion_rule_id = $2
		WHERE id = $1`

	productStockForUpdateSQL = `SELECT stock FROM products WHERE id = $1 FOR UPDATE`

	setProductStockSQL = `UPDATE products SET stock = $2 WHERE id = $1`

	variantColumns = `id, product_id, color, reference, price, old_price, stock,
		is_promotion, promotion_rule_id`

	variantForUpdateSQL = `SELECT ` + variantColumns + ` FROM product_images
		WHERE id = $1 FOR UPDATE`

	variantsForUpdateSQL = `SELECT ` + variantColumns + ` FROM product_images
		WHERE product_id = $1 ORDER BY id FOR UPDATE`

	variantsByReferenceSQL = `SELECT ` + variantColumns + ` FROM product_images
		WHERE reference = $1 ORDER BY id FOR UPDATE`

	promotedVariantsByReferenceSQL = `SELECT ` + variantColumns + ` FROM product_images
		WHERE reference = $1 AND is_promotion = TRUE AND old_price IS NOT NULL
		ORDER BY id FOR UPDATE`

	updateVariantPricingSQL = `UPDATE product_images
		SET price = $2, old_price = $3, is_promotion = $4, promotion_rule_id = $5
		WHERE id = $1`

	setVariantStockSQL = `UPDATE product_images SET stock = $2 WHERE id = $1`
)

var (
	_ catalog.Reader    = (*CatalogRepository)(nil)
	_ promotion.Catalog = (*CatalogRepository)(nil)
	_ stock.Catalog     = (*CatalogRepository)(nil)
)

// CatalogRepository is the PostgreSQL catalog: the read surface for order
// placement and listings, the repricing surface for the promotion engine,
// and the row-locked stock surface for the stock ledger.
type CatalogRepository struct {
	db DBTX
}

// NewCatalogRepository returns a CatalogRepository over db.
func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns all products ordered by id.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// GetByID returns a product or catalog.ErrNotFound.
func (r *CatalogRepository) GetByID(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding product %d: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("finding product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns the products matching ids. Missing ids are simply absent
// from the result; callers detect them by comparing lengths.
func (r *CatalogRepository) GetByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("finding products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("finding products by ids: %w", err)
	}
	return products, nil
}

// ProductsMatching returns products matching the filter, locked for the
// duration of the transaction. The filter's fields AND together.
func (r *CatalogRepository) ProductsMatching(ctx context.Context, f promotion.Filter) ([]catalog.Product, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.CategoryID != nil {
		conds = append(conds, "category_id = "+arg(*f.CategoryID))
	}
	if f.ProductID != nil {
		conds = append(conds, "id = "+arg(*f.ProductID))
	}
	if f.Reference != nil {
		conds = append(conds, "reference = "+arg(*f.Reference))
	}
	if f.IsBestSeller != nil {
		conds = append(conds, "is_best_seller = "+arg(*f.IsBestSeller))
	}
	if f.IsNew != nil {
		conds = append(conds, "is_new = "+arg(*f.IsNew))
	}
	if f.InPromotion {
		conds = append(conds, "is_promotion = TRUE", "old_price IS NOT NULL")
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY id FOR UPDATE`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("matching products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("matching products: %w", err)
	}
	return products, nil
}

// UpdateProductPricing rewrites a product's price fields and promotion stamp.
func (r *CatalogRepository) UpdateProductPricing(ctx context.Context, id int64, p promotion.Pricing) error {
	_, err := r.db.Exec(ctx, updateProductPricingSQL,
		id, p.Price, p.OldPrice, p.IsPromotion, p.PromotionRuleID,
	)
	if err != nil {
		return fmt.Errorf("updating pricing for product %d: %w", id, err)
	}
	return nil
}

// MarkProductPromotion flags a product as promoted without touching its price.
func (r *CatalogRepository) MarkProductPromotion(ctx context.Context, id, ruleID int64) error {
	_, err := r.db.Exec(ctx, markProductPromotionSQL, id, ruleID)
	if err != nil {
		return fmt.Errorf("marking product %d as promoted: %w", id, err)
	}
	return nil
}

// VariantsByReference returns variants carrying the given reference, locked.
// With inPromotion set only currently discounted variants match.
func (r *CatalogRepository) VariantsByReference(ctx context.Context, reference string, inPromotion bool) ([]catalog.ProductImage, error) {
	query := variantsByReferenceSQL
	if inPromotion {
		query = promotedVariantsByReferenceSQL
	}
	rows, err := r.db.Query(ctx, query, reference)
	if err != nil {
		return nil, fmt.Errorf("finding variants by reference %q: %w", reference, err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("finding variants by reference %q: %w", reference, err)
	}
	return variants, nil
}

// UpdateVariantPricing rewrites a variant's price fields and promotion stamp.
func (r *CatalogRepository) UpdateVariantPricing(ctx context.Context, id int64, p promotion.Pricing) error {
	_, err := r.db.Exec(ctx, updateVariantPricingSQL,
		id, p.Price, p.OldPrice, p.IsPromotion, p.PromotionRuleID,
	)
	if err != nil {
		return fmt.Errorf("updating pricing for variant %d: %w", id, err)
	}
	return nil
}

// ProductStockForUpdate locks the product row and returns its stock level.
func (r *CatalogRepository) ProductStockForUpdate(ctx context.Context, id int64) (int, error) {
	var s int
	err := r.db.QueryRow(ctx, productStockForUpdateSQL, id).Scan(&s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, catalog.ErrNotFound
		}
		return 0, fmt.Errorf("locking stock for product %d: %w", id, err)
	}
	return s, nil
}

// SetProductStock writes a new stock level for a locked product row.
func (r *CatalogRepository) SetProductStock(ctx context.Context, id int64, s int) error {
	_, err := r.db.Exec(ctx, setProductStockSQL, id, s)
	if err != nil {
		return fmt.Errorf("setting stock for product %d: %w", id, err)
	}
	return nil
}

// VariantForUpdate locks and returns a single variant row.
func (r *CatalogRepository) VariantForUpdate(ctx context.Context, id int64) (*catalog.ProductImage, error) {
	rows, err := r.db.Query(ctx, variantForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking variant %d: %w", id, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("locking variant %d: %w", id, err)
	}
	return &v, nil
}

// VariantsForUpdate locks and returns a product's variants in id order.
func (r *CatalogRepository) VariantsForUpdate(ctx context.Context, productID int64) ([]catalog.ProductImage, error) {
	rows, err := r.db.Query(ctx, variantsForUpdateSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("locking variants for product %d: %w", productID, err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return nil, fmt.Errorf("locking variants for product %d: %w", productID, err)
	}
	return variants, nil
}

// SetVariantStock writes a new stock level for a locked variant row.
func (r *CatalogRepository) SetVariantStock(ctx context.Context, id int64, s int) error {
	_, err := r.db.Exec(ctx, setVariantStockSQL, id, s)
	if err != nil {
		return fmt.Errorf("setting stock for variant %d: %w", id, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Reference, &p.CategoryID, &p.Price, &p.OldPrice,
		&p.Stock, &p.IsPromotion, &p.PromotionRuleID, &p.IsBestSeller, &p.IsNew,
	)
	return p, err
}

func scanVariant(row pgx.CollectableRow) (catalog.ProductImage, error) {
	var v catalog.ProductImage
	err := row.Scan(
		&v.ID, &v.ProductID, &v.Color, &v.Reference, &v.Price, &v.OldPrice,
		&v.Stock, &v.IsPromotion, &v.PromotionRuleID,
	)
	return v, err
}
