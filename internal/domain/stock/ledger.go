package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Reduce debits product and variant stock for every line of the order and
// marks the order stock-reduced. Calling it again for the same order is a
// silent no-op: the stockReduced flag guards against double-debit when two
// status transitions (say DELIVERED then COMPLETED) both trigger it.
//
// Variant resolution per line, in priority order:
//  1. the line's own variant, when it carries its own stock;
//  2. otherwise the first of the product's variants (ascending id) with
//     enough stock, modelling "any available variant" consumption.
//
// The caller owns the transaction; tx must be bound to it.
func Reduce(ctx context.Context, tx Tx, ord *OrderRef) error {
	if ord.StockReduced {
		zctx.From(ctx).Info("stock already reduced, skipping",
			zap.String("order", ord.Reference))
		return nil
	}

	reason := orderReason(ord.Reference)
	cat := tx.Catalog()

	for _, line := range ord.Lines {
		prev, err := cat.ProductStockForUpdate(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("lock product %d: %w", line.ProductID, err)
		}
		next := prev - line.Quantity
		if err := cat.SetProductStock(ctx, line.ProductID, next); err != nil {
			return fmt.Errorf("debit product %d: %w", line.ProductID, err)
		}
		if err := tx.Movements().Append(ctx, &Movement{
			ProductID:     line.ProductID,
			Type:          MovementOrder,
			Quantity:      -line.Quantity,
			PreviousStock: prev,
			NewStock:      next,
			Reason:        reason,
		}); err != nil {
			return fmt.Errorf("log product movement: %w", err)
		}

		if err := reduceVariant(ctx, tx, line, reason); err != nil {
			return err
		}
	}

	if err := tx.Orders().SetStockReduced(ctx, ord.ID, true); err != nil {
		return fmt.Errorf("mark order %s stock-reduced: %w", ord.Reference, err)
	}
	ord.StockReduced = true
	return nil
}

func reduceVariant(ctx context.Context, tx Tx, line OrderLine, reason string) error {
	cat := tx.Catalog()

	if line.ProductImageID != nil {
		v, err := cat.VariantForUpdate(ctx, *line.ProductImageID)
		if err != nil {
			return fmt.Errorf("lock variant %d: %w", *line.ProductImageID, err)
		}
		if v.Stock != nil {
			return debitVariant(ctx, tx, line, v.ID, v.Color, *v.Stock, reason)
		}
		// The named variant carries no stock of its own; fall through to the
		// any-available scan below.
	}

	variants, err := cat.VariantsForUpdate(ctx, line.ProductID)
	if err != nil {
		return fmt.Errorf("lock variants of product %d: %w", line.ProductID, err)
	}
	for _, v := range variants {
		if v.Stock != nil && *v.Stock >= line.Quantity {
			return debitVariant(ctx, tx, line, v.ID, v.Color, *v.Stock, reason)
		}
	}
	// No variant can absorb the quantity: the product-level debit already
	// happened, nothing more to record.
	return nil
}

func debitVariant(ctx context.Context, tx Tx, line OrderLine, variantID int64, color string, prev int, reason string) error {
	next := prev - line.Quantity
	if err := tx.Catalog().SetVariantStock(ctx, variantID, next); err != nil {
		return fmt.Errorf("debit variant %d: %w", variantID, err)
	}
	if err := tx.Movements().Append(ctx, &Movement{
		ProductID:      line.ProductID,
		ProductImageID: &variantID,
		Type:           MovementOrder,
		Quantity:       -line.Quantity,
		PreviousStock:  prev,
		NewStock:       next,
		Reason:         reason,
		Note:           color,
	}); err != nil {
		return fmt.Errorf("log variant movement: %w", err)
	}
	return nil
}

// Replenish credits back the stock a prior Reduce debited and clears the
// stock-reduced flag. It is a silent no-op when the order's stock was never
// reduced.
//
// Product stock is restored from the order lines, but variant stock is
// restored from the ORDER movements in the audit trail: the any-available
// fallback in Reduce may have debited a different variant than the one on
// the line, and only the trail knows which. Do not "simplify" this to re-run
// the forward allocation.
func Replenish(ctx context.Context, tx Tx, ord *OrderRef) error {
	if !ord.StockReduced {
		zctx.From(ctx).Info("stock was never reduced, skipping",
			zap.String("order", ord.Reference))
		return nil
	}

	reason := returnReason(ord.Reference)
	cat := tx.Catalog()

	for _, line := range ord.Lines {
		prev, err := cat.ProductStockForUpdate(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("lock product %d: %w", line.ProductID, err)
		}
		next := prev + line.Quantity
		if err := cat.SetProductStock(ctx, line.ProductID, next); err != nil {
			return fmt.Errorf("credit product %d: %w", line.ProductID, err)
		}
		if err := tx.Movements().Append(ctx, &Movement{
			ProductID:     line.ProductID,
			Type:          MovementReturn,
			Quantity:      line.Quantity,
			PreviousStock: prev,
			NewStock:      next,
			Reason:        reason,
		}); err != nil {
			return fmt.Errorf("log product movement: %w", err)
		}
	}

	debits, err := tx.Movements().VariantOrderMovements(ctx, ord.Reference)
	if err != nil {
		return fmt.Errorf("load variant movements for %s: %w", ord.Reference, err)
	}
	for _, m := range debits {
		v, err := cat.VariantForUpdate(ctx, *m.ProductImageID)
		if err != nil {
			return fmt.Errorf("lock variant %d: %w", *m.ProductImageID, err)
		}
		if v.Stock == nil {
			continue
		}
		qty := m.Quantity
		if qty < 0 {
			qty = -qty
		}
		prev := *v.Stock
		next := prev + qty
		if err := cat.SetVariantStock(ctx, v.ID, next); err != nil {
			return fmt.Errorf("credit variant %d: %w", v.ID, err)
		}
		if err := tx.Movements().Append(ctx, &Movement{
			ProductID:      m.ProductID,
			ProductImageID: m.ProductImageID,
			Type:           MovementReturn,
			Quantity:       qty,
			PreviousStock:  prev,
			NewStock:       next,
			Reason:         reason,
			Note:           m.Note,
		}); err != nil {
			return fmt.Errorf("log variant movement: %w", err)
		}
	}

	if err := tx.Orders().SetStockReduced(ctx, ord.ID, false); err != nil {
		return fmt.Errorf("clear stock-reduced on order %s: %w", ord.Reference, err)
	}
	ord.StockReduced = false
	return nil
}

// orderReason is the movement reason a Reduce stamps. Replenish finds the
// variant debits to undo by matching the order reference inside it.
func orderReason(reference string) string {
	return fmt.Sprintf("order %s", reference)
}

func returnReason(reference string) string {
	return fmt.Sprintf("return for order %s", reference)
}
