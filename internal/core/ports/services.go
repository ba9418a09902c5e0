// internal/core/ports/services.go
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
)

// SaleItemInput is one requested line of a sale: quantity units of a product
// at a charged unit price, minus an absolute discount for the whole line.
type SaleItemInput struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

// CreateSaleInput is the full request for creating a sale.
type CreateSaleInput struct {
	CustomerID    uuid.UUID            `json:"customer_id"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Items         []SaleItemInput      `json:"items"`
	Check         *CheckInput          `json:"check,omitempty"`
	Notes         string               `json:"notes,omitempty"`
}

// CheckInput carries check instrument fields for credit-check sales.
type CheckInput struct {
	CheckNumber string    `json:"check_number"`
	BankName    string    `json:"bank_name"`
	CheckDate   time.Time `json:"check_date"`
}

// MovementInput is the request for recording a stock movement.
type MovementInput struct {
	ProductID    uuid.UUID       `json:"product_id"`
	MovementType string          `json:"movement_type"`
	Quantity     int             `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	SupplierID   *uuid.UUID      `json:"supplier_id,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	OccurredAt   *time.Time      `json:"occurred_at,omitempty"`
}

// SaleService is the transactional sale engine: FIFO-costed creation,
// payment and bounce transitions, and exact reversal on deletion.
type SaleService interface {
	CreateSale(ctx context.Context, input CreateSaleInput) (*domain.Sale, error)
	CheckAvailability(ctx context.Context, items []SaleItemInput) (bool, error)
	GetSale(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	ListSales(ctx context.Context, params SaleListParams) (*SaleListResult, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id uuid.UUID) error
	MarkCheckBounced(ctx context.Context, id uuid.UUID, notes string) (*domain.Sale, error)
	ClearCheckBounced(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
}

// StockService records stock movements and serves ledger reads.
type StockService interface {
	RecordMovement(ctx context.Context, input MovementInput, mode domain.ValidateMode) (*domain.StockMovement, error)
	ListMovements(ctx context.Context, params MovementListParams) (*MovementListResult, error)
	TotalAvailable(ctx context.Context, productID uuid.UUID) (int, error)
	StockDetail(ctx context.Context, productID uuid.UUID) (*StockDetail, error)
}

// SaleListResult is a paginated page of sales.
type SaleListResult struct {
	Sales      []*domain.Sale `json:"sales"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalCount int64          `json:"total_count"`
	TotalPages int            `json:"total_pages"`
}

// MovementListResult is a paginated page of stock movements.
type MovementListResult struct {
	Movements  []*domain.StockMovement `json:"movements"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"page_size"`
	TotalCount int64                   `json:"total_count"`
	TotalPages int                     `json:"total_pages"`
}

// StockDetail compares the cached product counter against the batch ledger.
// A non-zero discrepancy means the conservation invariant is broken.
type StockDetail struct {
	ProductID     uuid.UUID              `json:"product_id"`
	ProductCode   string                 `json:"product_code"`
	ProductName   string                 `json:"product_name"`
	CachedStock   int                    `json:"cached_stock"`
	LedgerStock   int                    `json:"ledger_stock"`
	Discrepancy   int                    `json:"discrepancy"`
	ActiveBatches []domain.StockMovement `json:"active_batches"`
	DepletedCount int                    `json:"depleted_count"`
	TotalBatches  int                    `json:"total_batches"`
}
