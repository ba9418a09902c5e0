// internal/core/services/sale.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// maxQuantityPerItem caps a single request line; an order this large is a
// typo, not a sale.
const maxQuantityPerItem = 1000

// SaleService orchestrates the sale lifecycle. Creation runs as a staged
// pipeline inside a single transaction: validate, persist header, allocate
// batches FIFO, adjust customer balance, assert ledger consistency. Any
// failure past the first write rolls the whole sale back.
type SaleService struct {
	db        ports.Database
	sales     ports.SaleRepository
	movements ports.MovementRepository
	products  ports.ProductRepository
	customers ports.CustomerRepository
	validator *StockValidator
	allocator *BatchAllocator
	cache     ports.CacheRepository
	logger    *slog.Logger
}

// Statically assert that *SaleService implements the SaleService interface.
var _ ports.SaleService = (*SaleService)(nil)

// NewSaleService creates the sale orchestrator. cache may be nil; it is only
// used to invalidate derived read models after a commit.
func NewSaleService(
	db ports.Database,
	sales ports.SaleRepository,
	movements ports.MovementRepository,
	products ports.ProductRepository,
	customers ports.CustomerRepository,
	cache ports.CacheRepository,
	logger *slog.Logger,
) *SaleService {
	return &SaleService{
		db:        db,
		sales:     sales,
		movements: movements,
		products:  products,
		customers: customers,
		validator: NewStockValidator(movements, products, logger),
		allocator: NewBatchAllocator(movements, products, logger),
		cache:     cache,
		logger:    logger.With(slog.String("service", "sale")),
	}
}

// CreateSale creates a sale, consuming inventory batches oldest-first. The
// returned sale carries its persisted lines. Credit-check sales start unpaid
// and add their total to the customer's outstanding balance.
func (s *SaleService) CreateSale(ctx context.Context, input ports.CreateSaleInput) (*domain.Sale, error) {
	total, err := validateSaleInput(input)
	if err != nil {
		return nil, err
	}

	var sale *domain.Sale
	err = s.db.TransactionWithOptions(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		sales := s.sales.WithTx(tx)
		customers := s.customers.WithTx(tx)
		products := s.products.WithTx(tx)
		movements := s.movements.WithTx(tx)
		validator := s.validator.WithTx(tx)
		allocator := s.allocator.WithTx(tx)

		customer, err := customers.FindByID(ctx, input.CustomerID)
		if err != nil {
			return fmt.Errorf("failed to load customer: %w", err)
		}
		if customer == nil {
			return &domain.NotFoundError{Entity: "customer", ID: input.CustomerID}
		}

		// First availability pass; collects every shortfall for the caller.
		if err := validator.Validate(ctx, input.Items); err != nil {
			return err
		}

		sale = domain.NewSale(input.CustomerID, input.PaymentMethod, checkDetailsFromInput(input.Check))
		sale.Notes = input.Notes
		sale.TotalAmount = total
		if err := sale.Validate(domain.ModeStrict); err != nil {
			return err
		}
		if err := sales.SaveHeader(ctx, sale); err != nil {
			return fmt.Errorf("failed to persist sale header: %w", err)
		}

		for _, item := range input.Items {
			// Second availability check per item, under the same transaction,
			// right before the batch rows are locked. Validation was a
			// snapshot; a concurrent sale may have drained this product.
			available, err := movements.TotalAvailable(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("failed to re-check availability: %w", err)
			}
			if available < item.Quantity {
				return &domain.InsufficientStockError{Shortfalls: []domain.Shortfall{{
					ProductID: item.ProductID,
					Required:  item.Quantity,
					Available: available,
				}}}
			}

			lines, err := allocator.Allocate(ctx, sale.ID, item)
			if err != nil {
				return err
			}
			if err := sales.InsertLines(ctx, lines); err != nil {
				return fmt.Errorf("failed to persist sale lines: %w", err)
			}
			sale.Lines = append(sale.Lines, lines...)
		}

		if !sale.IsPaid {
			if _, err := customers.AdjustBalance(ctx, sale.CustomerID, sale.TotalAmount); err != nil {
				return fmt.Errorf("failed to add to customer balance: %w", err)
			}
		}

		return s.assertConsistency(ctx, products, movements, sale, touchedProducts(input.Items))
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStockCaches(ctx, touchedProducts(input.Items))
	s.logger.InfoContext(ctx, "sale created",
		slog.String("sale_id", sale.ID.String()),
		slog.String("customer_id", sale.CustomerID.String()),
		slog.String("total", sale.TotalAmount.StringFixed(2)),
		slog.String("payment_method", string(sale.PaymentMethod)),
		slog.Int("lines", len(sale.Lines)))
	return sale, nil
}

// CheckAvailability reports whether every requested item could currently be
// fulfilled. Advisory only; the answer can be stale by the time a sale is
// submitted.
func (s *SaleService) CheckAvailability(ctx context.Context, items []ports.SaleItemInput) (bool, error) {
	for _, item := range items {
		if item.Quantity <= 0 {
			return false, domain.NewValidationError("quantity must be positive")
		}
	}
	err := s.validator.Validate(ctx, items)
	if err == nil {
		return true, nil
	}
	var ise *domain.InsufficientStockError
	if errors.As(err, &ise) {
		return false, nil
	}
	return false, err
}

// GetSale returns a sale with its lines.
func (s *SaleService) GetSale(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	sale, err := s.sales.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sale: %w", err)
	}
	if sale == nil {
		return nil, &domain.NotFoundError{Entity: "sale", ID: id}
	}
	lines, err := s.sales.FindLines(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sale lines: %w", err)
	}
	sale.Lines = lines
	return sale, nil
}

// ListSales returns a filtered, paginated page of sales.
func (s *SaleService) ListSales(ctx context.Context, params ports.SaleListParams) (*ports.SaleListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 50
	}
	sales, totalCount, err := s.sales.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return &ports.SaleListResult{
		Sales:      sales,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalCount: totalCount,
		TotalPages: totalPages(totalCount, params.PageSize),
	}, nil
}

// MarkPaid settles an unpaid sale and reduces the customer's outstanding
// balance by its total. Bounced checks must be cleared first.
func (s *SaleService) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	var sale *domain.Sale
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		sales := s.sales.WithTx(tx)
		customers := s.customers.WithTx(tx)

		var err error
		sale, err = sales.FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load sale: %w", err)
		}
		if sale == nil {
			return &domain.NotFoundError{Entity: "sale", ID: id}
		}

		if err := sale.MarkPaid(); err != nil {
			return err
		}
		if err := sales.UpdateStatus(ctx, sale); err != nil {
			return fmt.Errorf("failed to update sale status: %w", err)
		}
		if _, err := customers.AdjustBalance(ctx, sale.CustomerID, sale.TotalAmount.Neg()); err != nil {
			return fmt.Errorf("failed to reduce customer balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "sale marked paid",
		slog.String("sale_id", id.String()),
		slog.String("total", sale.TotalAmount.StringFixed(2)))
	return sale, nil
}

// DeleteSale removes a sale and restores inventory exactly: each line's
// quantity goes back onto the specific batch it was drawn from, rather than
// re-running allocation. Unpaid sales also release their hold on the
// customer's balance.
func (s *SaleService) DeleteSale(ctx context.Context, id uuid.UUID) error {
	var touched []uuid.UUID
	err := s.db.TransactionWithOptions(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		sales := s.sales.WithTx(tx)
		customers := s.customers.WithTx(tx)
		products := s.products.WithTx(tx)
		movements := s.movements.WithTx(tx)

		sale, err := sales.FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load sale: %w", err)
		}
		if sale == nil {
			return &domain.NotFoundError{Entity: "sale", ID: id}
		}
		lines, err := sales.FindLines(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load sale lines: %w", err)
		}

		restored := make(map[uuid.UUID]int, len(lines))
		for _, line := range lines {
			if _, err := movements.AdjustRemaining(ctx, line.BatchID, line.Quantity); err != nil {
				return fmt.Errorf("failed to restore batch %s: %w", line.BatchID, err)
			}
			restored[line.ProductID] += line.Quantity
		}
		for productID, qty := range restored {
			if _, err := products.AdjustStock(ctx, productID, qty); err != nil {
				return fmt.Errorf("failed to restore product stock: %w", err)
			}
			touched = append(touched, productID)
		}

		if !sale.IsPaid {
			if _, err := customers.AdjustBalance(ctx, sale.CustomerID, sale.TotalAmount.Neg()); err != nil {
				return fmt.Errorf("failed to release customer balance: %w", err)
			}
		}

		if err := sales.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete sale: %w", err)
		}

		sale.Lines = lines
		return s.assertConsistency(ctx, products, movements, sale, touched)
	})
	if err != nil {
		return err
	}

	s.invalidateStockCaches(ctx, touched)
	s.logger.InfoContext(ctx, "sale deleted", slog.String("sale_id", id.String()))
	return nil
}

// MarkCheckBounced flags an unpaid check sale as bounced. Inventory and the
// customer's outstanding balance are untouched; the goods shipped and the
// debt stands until the check is cleared or the sale deleted.
func (s *SaleService) MarkCheckBounced(ctx context.Context, id uuid.UUID, notes string) (*domain.Sale, error) {
	sale, err := s.transitionCheck(ctx, id, func(sale *domain.Sale) error {
		return sale.MarkBounced(notes)
	})
	if err != nil {
		return nil, err
	}
	s.logger.WarnContext(ctx, "check marked bounced",
		slog.String("sale_id", id.String()),
		slog.String("check_number", sale.Check.CheckNumber))
	return sale, nil
}

// ClearCheckBounced removes the bounced flag so the sale can be paid again.
func (s *SaleService) ClearCheckBounced(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	sale, err := s.transitionCheck(ctx, id, (*domain.Sale).ClearBounced)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "check bounce cleared", slog.String("sale_id", id.String()))
	return sale, nil
}

// transitionCheck loads a sale under lock, applies a domain transition, and
// persists the new status.
func (s *SaleService) transitionCheck(ctx context.Context, id uuid.UUID, transition func(*domain.Sale) error) (*domain.Sale, error) {
	var sale *domain.Sale
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		sales := s.sales.WithTx(tx)

		var err error
		sale, err = sales.FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load sale: %w", err)
		}
		if sale == nil {
			return &domain.NotFoundError{Entity: "sale", ID: id}
		}
		if err := transition(sale); err != nil {
			return err
		}
		if err := sales.UpdateStatus(ctx, sale); err != nil {
			return fmt.Errorf("failed to update sale status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// assertConsistency verifies, before commit, that no touched product ended up
// with a negative counter or ledger, and that the sale total still equals the
// sum of its lines. A violation here is a bug in allocation or reversal and
// aborts the transaction.
func (s *SaleService) assertConsistency(
	ctx context.Context,
	products ports.ProductRepository,
	movements ports.MovementRepository,
	sale *domain.Sale,
	productIDs []uuid.UUID,
) error {
	if sum := sale.LineTotalSum(); !sum.Equal(sale.TotalAmount) {
		err := domain.NewConsistencyError("sale %s total %s does not match line sum %s",
			sale.ID, sale.TotalAmount.StringFixed(2), sum.StringFixed(2))
		s.logger.ErrorContext(ctx, "consistency check failed", slog.String("error", err.Error()))
		return err
	}

	for _, productID := range productIDs {
		p, err := products.FindByID(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to re-load product for consistency check: %w", err)
		}
		if p == nil {
			err := domain.NewConsistencyError("product %s vanished mid-transaction", productID)
			s.logger.ErrorContext(ctx, "consistency check failed", slog.String("error", err.Error()))
			return err
		}
		ledger, err := movements.TotalAvailable(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to re-sum ledger for consistency check: %w", err)
		}
		if p.CurrentStock < 0 || ledger < 0 || p.CurrentStock != ledger {
			err := domain.NewConsistencyError("product %s counter=%d ledger=%d after sale %s",
				productID, p.CurrentStock, ledger, sale.ID)
			s.logger.ErrorContext(ctx, "consistency check failed", slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

// invalidateStockCaches drops derived read models after a committed stock
// mutation. Best-effort: a failed invalidation only delays freshness by the
// cache TTL.
func (s *SaleService) invalidateStockCaches(ctx context.Context, productIDs []uuid.UUID) {
	if s.cache == nil {
		return
	}
	keys := []string{"dash:summary", "stock:low"}
	for _, id := range productIDs {
		keys = append(keys, "stock:detail:"+id.String())
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", slog.String("error", err.Error()))
	}
}

// validateSaleInput rejects malformed requests before any database work and
// returns the computed sale total.
func validateSaleInput(input ports.CreateSaleInput) (decimal.Decimal, error) {
	if input.CustomerID == uuid.Nil {
		return decimal.Zero, domain.NewValidationError("customer is required")
	}
	if !input.PaymentMethod.Valid() {
		return decimal.Zero, domain.NewValidationError("payment method %q is not recognized", input.PaymentMethod)
	}
	if len(input.Items) == 0 {
		return decimal.Zero, domain.NewValidationError("sale must contain at least one item")
	}

	total := decimal.Zero
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return decimal.Zero, domain.NewValidationError("item %d: product is required", i+1)
		}
		if item.Quantity <= 0 {
			return decimal.Zero, domain.NewValidationError("item %d: quantity must be positive", i+1)
		}
		if item.Quantity > maxQuantityPerItem {
			return decimal.Zero, domain.NewValidationError("item %d: quantity exceeds the per-item limit of %d", i+1, maxQuantityPerItem)
		}
		if item.UnitPrice.Sign() <= 0 {
			return decimal.Zero, domain.NewValidationError("item %d: unit price must be greater than zero", i+1)
		}
		// Money columns hold 2 decimal places; sub-cent amounts would make
		// the per-batch line totals drift from the sale total.
		if !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
			return decimal.Zero, domain.NewValidationError("item %d: unit price cannot have more than 2 decimal places", i+1)
		}
		if item.Discount.IsNegative() {
			return decimal.Zero, domain.NewValidationError("item %d: discount cannot be negative", i+1)
		}
		if !item.Discount.Equal(item.Discount.Round(2)) {
			return decimal.Zero, domain.NewValidationError("item %d: discount cannot have more than 2 decimal places", i+1)
		}
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2).Sub(item.Discount).Round(2)
		if lineTotal.IsNegative() {
			return decimal.Zero, domain.NewValidationError("item %d: discount exceeds the line amount", i+1)
		}
		total = total.Add(lineTotal)
	}
	// Individual lines may be discounted to zero, but the sale as a whole
	// must come to a positive amount.
	if total.Sign() <= 0 {
		return decimal.Zero, domain.NewValidationError("sale total must be greater than zero")
	}
	return total, nil
}

func checkDetailsFromInput(in *ports.CheckInput) *domain.CheckDetails {
	if in == nil {
		return nil
	}
	return &domain.CheckDetails{
		CheckNumber: in.CheckNumber,
		BankName:    in.BankName,
		CheckDate:   in.CheckDate,
	}
}

// touchedProducts returns the distinct product IDs in request order.
func touchedProducts(items []ports.SaleItemInput) []uuid.UUID {
	_, order := AggregateRequirements(items)
	return order
}

func totalPages(totalCount int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(totalCount) / pageSize
	if int(totalCount)%pageSize > 0 {
		pages++
	}
	return pages
}
