// internal/core/services/validator.go
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// StockValidator is the read-only pre-flight check for a sale: it aggregates
// requested quantities per product and compares them against the summed
// remaining quantity of the product's IN batches. It collects every shortfall
// rather than failing on the first, so callers can report the complete list.
//
// Validation is a snapshot; stock can deplete between this check and
// allocation, so the orchestrator re-checks per product right before the
// allocator runs inside the same transaction.
type StockValidator struct {
	movements ports.MovementRepository
	products  ports.ProductRepository
	logger    *slog.Logger
}

// NewStockValidator creates a stock validator.
func NewStockValidator(movements ports.MovementRepository, products ports.ProductRepository, logger *slog.Logger) *StockValidator {
	return &StockValidator{
		movements: movements,
		products:  products,
		logger:    logger.With(slog.String("service", "stock_validator")),
	}
}

// WithTx returns a validator whose reads are bound to the given transaction.
func (v *StockValidator) WithTx(tx pgx.Tx) *StockValidator {
	return &StockValidator{
		movements: v.movements.WithTx(tx),
		products:  v.products.WithTx(tx),
		logger:    v.logger,
	}
}

// Validate confirms every product in the request can be fulfilled from the
// ledger. Returns a domain.InsufficientStockError carrying all shortfalls, or
// nil when the whole request is satisfiable. Performs no mutation.
func (v *StockValidator) Validate(ctx context.Context, items []ports.SaleItemInput) error {
	required, order := AggregateRequirements(items)
	if len(order) == 0 {
		return nil
	}

	available, err := v.movements.TotalAvailableMany(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to load available stock: %w", err)
	}

	var shortfalls []domain.Shortfall
	for _, productID := range order {
		need := required[productID]
		have := available[productID]
		if have >= need {
			continue
		}

		short := domain.Shortfall{ProductID: productID, Required: need, Available: have}
		// Product lookup is best-effort; the shortfall stands either way.
		if p, perr := v.products.FindByID(ctx, productID); perr == nil && p != nil {
			short.ProductCode = p.Code
			short.ProductName = p.Name
		}
		shortfalls = append(shortfalls, short)

		v.logger.WarnContext(ctx, "insufficient stock",
			slog.String("product_id", productID.String()),
			slog.Int("required", need),
			slog.Int("available", have))
	}

	if len(shortfalls) > 0 {
		return &domain.InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

// AggregateRequirements groups requested quantities by product, preserving
// first-seen product order for deterministic error reporting. A sale may
// reference the same product on multiple lines.
func AggregateRequirements(items []ports.SaleItemInput) (map[uuid.UUID]int, []uuid.UUID) {
	required := make(map[uuid.UUID]int, len(items))
	order := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, seen := required[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		required[item.ProductID] += item.Quantity
	}
	return required, order
}
