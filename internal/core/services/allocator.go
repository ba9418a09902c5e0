// internal/core/services/allocator.go
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// BatchAllocator consumes IN batches oldest-first to fulfill a sale item,
// producing one sale line per batch touched. It must run inside the sale
// transaction: the batch rows are locked FOR UPDATE before any decrement.
//
// Batches are depleted to zero remaining quantity, never deleted; the
// depleted rows stay behind as cost history for the lines that reference
// them.
type BatchAllocator struct {
	movements ports.MovementRepository
	products  ports.ProductRepository
	logger    *slog.Logger
}

// NewBatchAllocator creates a FIFO batch allocator.
func NewBatchAllocator(movements ports.MovementRepository, products ports.ProductRepository, logger *slog.Logger) *BatchAllocator {
	return &BatchAllocator{
		movements: movements,
		products:  products,
		logger:    logger.With(slog.String("service", "batch_allocator")),
	}
}

// WithTx returns an allocator bound to the given transaction.
func (a *BatchAllocator) WithTx(tx pgx.Tx) *BatchAllocator {
	return &BatchAllocator{
		movements: a.movements.WithTx(tx),
		products:  a.products.WithTx(tx),
		logger:    a.logger,
	}
}

// batchTake pairs a locked batch with the quantity drawn from it.
type batchTake struct {
	batch *domain.StockMovement
	take  int
}

// Allocate fulfills one sale item from the product's open batches in receipt
// order (occurred_at, then id). Each batch contributes min(outstanding,
// remaining); when the item spans batches the discount is apportioned across
// the resulting lines pro rata by quantity, with any rounding remainder
// carried by the last line so the line totals sum exactly.
//
// Also decrements the product's cached stock counter by the item quantity.
// Returns domain.InsufficientStockError if the batches cannot cover the item,
// which aborts the surrounding transaction.
func (a *BatchAllocator) Allocate(ctx context.Context, saleID uuid.UUID, item ports.SaleItemInput) ([]domain.SaleLine, error) {
	batches, err := a.movements.AvailableBatchesForUpdate(ctx, item.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock batches for product %s: %w", item.ProductID, err)
	}

	outstanding := item.Quantity
	takes := make([]batchTake, 0, 2)
	for i := range batches {
		if outstanding == 0 {
			break
		}
		b := &batches[i]
		take := min(outstanding, b.RemainingQuantity)
		if take <= 0 {
			continue
		}
		takes = append(takes, batchTake{batch: b, take: take})
		outstanding -= take
	}

	if outstanding > 0 {
		short := domain.Shortfall{
			ProductID: item.ProductID,
			Required:  item.Quantity,
			Available: item.Quantity - outstanding,
		}
		if p, perr := a.products.FindByID(ctx, item.ProductID); perr == nil && p != nil {
			short.ProductCode = p.Code
			short.ProductName = p.Name
		}
		return nil, &domain.InsufficientStockError{Shortfalls: []domain.Shortfall{short}}
	}

	discounts := apportionDiscount(item.Discount, takes, item.Quantity)

	lines := make([]domain.SaleLine, 0, len(takes))
	for i, t := range takes {
		if _, err := a.movements.AdjustRemaining(ctx, t.batch.ID, -t.take); err != nil {
			return nil, fmt.Errorf("failed to decrement batch %s: %w", t.batch.ID, err)
		}

		line, err := domain.NewSaleLine(saleID, t.batch, t.take, item.UnitPrice, discounts[i])
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)

		a.logger.DebugContext(ctx, "batch consumed",
			slog.String("batch_id", t.batch.ID.String()),
			slog.String("product_id", item.ProductID.String()),
			slog.Int("taken", t.take),
			slog.Int("batch_remaining", t.batch.RemainingQuantity-t.take))
	}

	if _, err := a.products.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
		return nil, fmt.Errorf("failed to decrement product stock: %w", err)
	}

	return lines, nil
}

// apportionDiscount splits a line discount across batch takes pro rata by
// quantity. Each share is the change in the rounded cumulative discount, so
// shares never go negative and always sum to the discount exactly. A single
// take carries the whole discount unchanged.
func apportionDiscount(discount decimal.Decimal, takes []batchTake, totalQty int) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(takes))
	if len(takes) == 0 {
		return shares
	}
	if len(takes) == 1 || discount.IsZero() {
		shares[0] = discount
		return shares
	}

	total := decimal.NewFromInt(int64(totalQty))
	allocated := decimal.Zero
	cum := 0
	for i, t := range takes {
		if i == len(takes)-1 {
			shares[i] = discount.Sub(allocated)
			break
		}
		cum += t.take
		target := discount.Mul(decimal.NewFromInt(int64(cum))).Div(total).Round(2)
		shares[i] = target.Sub(allocated)
		allocated = target
	}
	return shares
}
