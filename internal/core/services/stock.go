// internal/core/services/stock.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// StockService records stock movements and serves reads over the batch
// ledger. Receipts open a new batch; egresses outside a sale (damage,
// shrinkage, manual correction) consume batches oldest-first just like a
// sale does, but leave no sale lines behind.
type StockService struct {
	db        ports.Database
	movements ports.MovementRepository
	products  ports.ProductRepository
	suppliers ports.SupplierRepository
	cache     ports.CacheRepository
	logger    *slog.Logger
}

// Statically assert that *StockService implements the StockService interface.
var _ ports.StockService = (*StockService)(nil)

// NewStockService creates a stock service. cache may be nil.
func NewStockService(
	db ports.Database,
	movements ports.MovementRepository,
	products ports.ProductRepository,
	suppliers ports.SupplierRepository,
	cache ports.CacheRepository,
	logger *slog.Logger,
) *StockService {
	return &StockService{
		db:        db,
		movements: movements,
		products:  products,
		suppliers: suppliers,
		cache:     cache,
		logger:    logger.With(slog.String("service", "stock")),
	}
}

// RecordMovement records an IN receipt or an OUT egress. Backfill mode
// relaxes date validation so historical ledgers can be imported.
func (s *StockService) RecordMovement(ctx context.Context, input ports.MovementInput, mode domain.ValidateMode) (*domain.StockMovement, error) {
	occurredAt := time.Now()
	if input.OccurredAt != nil {
		occurredAt = *input.OccurredAt
	}

	switch domain.MovementType(strings.ToUpper(input.MovementType)) {
	case domain.MovementIn:
		return s.recordReceipt(ctx, input, occurredAt, mode)
	case domain.MovementOut:
		return s.recordEgress(ctx, input, occurredAt, mode)
	default:
		return nil, domain.NewValidationError("movement type %q is not recognized", input.MovementType)
	}
}

func (s *StockService) recordReceipt(ctx context.Context, input ports.MovementInput, occurredAt time.Time, mode domain.ValidateMode) (*domain.StockMovement, error) {
	if input.SupplierID == nil {
		return nil, domain.NewValidationError("supplier is required for stock receipts")
	}

	movement := domain.NewStockReceipt(input.ProductID, input.Quantity, input.UnitCost, *input.SupplierID, occurredAt)
	movement.Reference = input.Reference
	if err := movement.Validate(mode); err != nil {
		return nil, err
	}

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		movements := s.movements.WithTx(tx)
		products := s.products.WithTx(tx)
		suppliers := s.suppliers.WithTx(tx)

		product, err := products.FindByID(ctx, input.ProductID)
		if err != nil {
			return fmt.Errorf("failed to load product: %w", err)
		}
		if product == nil {
			return &domain.NotFoundError{Entity: "product", ID: input.ProductID}
		}
		supplier, err := suppliers.FindByID(ctx, *input.SupplierID)
		if err != nil {
			return fmt.Errorf("failed to load supplier: %w", err)
		}
		if supplier == nil {
			return &domain.NotFoundError{Entity: "supplier", ID: *input.SupplierID}
		}

		movement.PrepareForStorage()
		if err := movements.Save(ctx, movement); err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		if _, err := products.AdjustStock(ctx, input.ProductID, input.Quantity); err != nil {
			return fmt.Errorf("failed to increment product stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStockCaches(ctx, input.ProductID)
	s.logger.InfoContext(ctx, "stock receipt recorded",
		slog.String("movement_id", movement.ID.String()),
		slog.String("product_id", input.ProductID.String()),
		slog.Int("quantity", input.Quantity),
		slog.String("unit_cost", input.UnitCost.StringFixed(2)))
	return movement, nil
}

func (s *StockService) recordEgress(ctx context.Context, input ports.MovementInput, occurredAt time.Time, mode domain.ValidateMode) (*domain.StockMovement, error) {
	movement := domain.NewStockEgress(input.ProductID, input.Quantity, occurredAt)
	movement.Reference = input.Reference
	if err := movement.Validate(mode); err != nil {
		return nil, err
	}

	err := s.db.TransactionWithOptions(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		movements := s.movements.WithTx(tx)
		products := s.products.WithTx(tx)

		product, err := products.FindByID(ctx, input.ProductID)
		if err != nil {
			return fmt.Errorf("failed to load product: %w", err)
		}
		if product == nil {
			return &domain.NotFoundError{Entity: "product", ID: input.ProductID}
		}

		// Consume batches oldest-first, same walk the sale allocator does,
		// so manual egresses and sales draw from the same FIFO order.
		batches, err := movements.AvailableBatchesForUpdate(ctx, input.ProductID)
		if err != nil {
			return fmt.Errorf("failed to lock batches: %w", err)
		}
		outstanding := input.Quantity
		for i := range batches {
			if outstanding == 0 {
				break
			}
			take := min(outstanding, batches[i].RemainingQuantity)
			if take <= 0 {
				continue
			}
			if _, err := movements.AdjustRemaining(ctx, batches[i].ID, -take); err != nil {
				return fmt.Errorf("failed to decrement batch %s: %w", batches[i].ID, err)
			}
			outstanding -= take
		}
		if outstanding > 0 {
			return &domain.InsufficientStockError{Shortfalls: []domain.Shortfall{{
				ProductID:   input.ProductID,
				ProductCode: product.Code,
				ProductName: product.Name,
				Required:    input.Quantity,
				Available:   input.Quantity - outstanding,
			}}}
		}

		movement.PrepareForStorage()
		if err := movements.Save(ctx, movement); err != nil {
			return fmt.Errorf("failed to save egress: %w", err)
		}
		if _, err := products.AdjustStock(ctx, input.ProductID, -input.Quantity); err != nil {
			return fmt.Errorf("failed to decrement product stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStockCaches(ctx, input.ProductID)
	s.logger.InfoContext(ctx, "stock egress recorded",
		slog.String("movement_id", movement.ID.String()),
		slog.String("product_id", input.ProductID.String()),
		slog.Int("quantity", input.Quantity))
	return movement, nil
}

// ListMovements returns a filtered, paginated page of the ledger.
func (s *StockService) ListMovements(ctx context.Context, params ports.MovementListParams) (*ports.MovementListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 200 {
		params.PageSize = 50
	}
	movements, totalCount, err := s.movements.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return &ports.MovementListResult{
		Movements:  movements,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, params.PageSize),
	}, nil
}

// TotalAvailable returns the product's ledger stock: the summed remaining
// quantity of its IN batches.
func (s *StockService) TotalAvailable(ctx context.Context, productID uuid.UUID) (int, error) {
	available, err := s.movements.TotalAvailable(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum available stock: %w", err)
	}
	return available, nil
}

// StockDetail reconciles the cached product counter against the batch ledger
// and returns the open batches. A non-zero discrepancy is logged at error
// level; it means an allocation or reversal broke conservation.
func (s *StockService) StockDetail(ctx context.Context, productID uuid.UUID) (*ports.StockDetail, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return nil, &domain.NotFoundError{Entity: "product", ID: productID}
	}

	batches, total, err := s.movements.List(ctx, ports.MovementListParams{
		ProductID:    &productID,
		MovementType: string(domain.MovementIn),
		SortOrder:    "asc",
		Page:         1,
		PageSize:     200,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}

	detail := &ports.StockDetail{
		ProductID:    productID,
		ProductCode:  product.Code,
		ProductName:  product.Name,
		CachedStock:  product.CurrentStock,
		TotalBatches: int(total),
	}
	for _, b := range batches {
		detail.LedgerStock += b.RemainingQuantity
		if b.IsDepleted() {
			detail.DepletedCount++
		} else {
			detail.ActiveBatches = append(detail.ActiveBatches, *b)
		}
	}
	detail.Discrepancy = detail.CachedStock - detail.LedgerStock

	if detail.Discrepancy != 0 {
		s.logger.ErrorContext(ctx, "stock counter drifted from ledger",
			slog.String("product_id", productID.String()),
			slog.Int("cached", detail.CachedStock),
			slog.Int("ledger", detail.LedgerStock))
	}
	return detail, nil
}

func (s *StockService) invalidateStockCaches(ctx context.Context, productID uuid.UUID) {
	if s.cache == nil {
		return
	}
	keys := []string{"dash:summary", "stock:low", "stock:detail:" + productID.String()}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", slog.String("error", err.Error()))
	}
}
