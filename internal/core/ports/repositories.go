// internal/core/ports/repositories.go
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
)

// Repositories are implemented by the database adapter. Every repository
// exposes WithTx so the sale orchestrator can bind all of its reads and
// writes to the single transaction that spans a sale.

// ProductRepository persists products and their cached stock counter.
type ProductRepository interface {
	WithTx(tx pgx.Tx) ProductRepository
	Save(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByCode(ctx context.Context, code string) (*domain.Product, error)
	// AdjustStock applies a delta to the cached counter and returns the new
	// value. The UPDATE is guarded so the counter can never go negative.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
	List(ctx context.Context, params ProductListParams) ([]*domain.Product, int64, error)
	LowStock(ctx context.Context) ([]*domain.Product, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// MovementRepository persists the stock ledger.
type MovementRepository interface {
	WithTx(tx pgx.Tx) MovementRepository
	Save(ctx context.Context, m *domain.StockMovement) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.StockMovement, error)
	// AvailableBatchesForUpdate returns the product's non-depleted IN batches
	// ordered oldest-first (receipt date, then id) with their rows locked for
	// the duration of the enclosing transaction.
	AvailableBatchesForUpdate(ctx context.Context, productID uuid.UUID) ([]domain.StockMovement, error)
	TotalAvailable(ctx context.Context, productID uuid.UUID) (int, error)
	TotalAvailableMany(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error)
	// AdjustRemaining applies a delta to a batch's remaining quantity and
	// returns the new value. Guarded against underflow and overflow past the
	// original quantity.
	AdjustRemaining(ctx context.Context, batchID uuid.UUID, delta int) (int, error)
	List(ctx context.Context, params MovementListParams) ([]*domain.StockMovement, int64, error)
}

// SaleRepository persists sales and their lines.
type SaleRepository interface {
	WithTx(tx pgx.Tx) SaleRepository
	SaveHeader(ctx context.Context, s *domain.Sale) error
	InsertLines(ctx context.Context, lines []domain.SaleLine) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	FindLines(ctx context.Context, saleID uuid.UUID) ([]domain.SaleLine, error)
	UpdateTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, s *domain.Sale) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params SaleListParams) ([]*domain.Sale, int64, error)
	ChecksDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Sale, error)
}

// CustomerRepository persists customers and their credit balance.
type CustomerRepository interface {
	WithTx(tx pgx.Tx) CustomerRepository
	Save(ctx context.Context, c *domain.Customer) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	// AdjustBalance applies a delta to the outstanding balance and returns the
	// new value, flooring at zero on reduction.
	AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
}

// SupplierRepository persists suppliers (receipt attribution only).
type SupplierRepository interface {
	WithTx(tx pgx.Tx) SupplierRepository
	Save(ctx context.Context, s *domain.Supplier) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Supplier, error)
}

// ProductListParams holds filters for listing products.
type ProductListParams struct {
	Search     string
	ActiveOnly bool
	SortBy     string
	SortOrder  string
	Page       int
	PageSize   int
}

// MovementListParams holds filters for listing stock movements.
type MovementListParams struct {
	ProductID     *uuid.UUID
	SupplierID    *uuid.UUID
	MovementType  string
	From, To      *time.Time
	AvailableOnly bool
	SortOrder     string
	Page          int
	PageSize      int
}

// SaleListParams holds filters for listing sales.
type SaleListParams struct {
	CustomerID  *uuid.UUID
	UnpaidOnly  bool
	BouncedOnly bool
	From, To    *time.Time
	SortOrder   string
	Page        int
	PageSize    int
}
