// internal/core/domain/movement.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType distinguishes stock receipts from non-sale stock egress.
type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// ValidateMode controls how strictly date fields are checked. Backfill mode is
// passed explicitly by the seeder when loading historical data; there is no
// ambient process-wide switch.
type ValidateMode int

const (
	ModeStrict ValidateMode = iota
	ModeBackfill
)

// StockMovement is one row of the stock ledger. IN movements are the batches
// the FIFO allocator consumes: Quantity is the originally received amount and
// RemainingQuantity counts down as sales draw from the batch. A depleted batch
// stays at zero and is never deleted. OUT movements record non-sale egress and
// are excluded from batch selection; their RemainingQuantity is always zero.
type StockMovement struct {
	ID                uuid.UUID       `json:"id"`
	ProductID         uuid.UUID       `json:"product_id"`
	MovementType      MovementType    `json:"movement_type"`
	Quantity          int             `json:"quantity"`
	RemainingQuantity int             `json:"remaining_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SupplierID        *uuid.UUID      `json:"supplier_id,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	OccurredAt        time.Time       `json:"occurred_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NewStockReceipt creates an IN movement with the full quantity remaining.
func NewStockReceipt(productID uuid.UUID, quantity int, unitCost decimal.Decimal, supplierID uuid.UUID, occurredAt time.Time) *StockMovement {
	return &StockMovement{
		ID:                uuid.New(),
		ProductID:         productID,
		MovementType:      MovementIn,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		UnitCost:          unitCost,
		SupplierID:        &supplierID,
		OccurredAt:        occurredAt,
	}
}

// NewStockEgress creates an OUT movement (adjustment, damage, transfer).
func NewStockEgress(productID uuid.UUID, quantity int, occurredAt time.Time) *StockMovement {
	return &StockMovement{
		ID:           uuid.New(),
		ProductID:    productID,
		MovementType: MovementOut,
		Quantity:     quantity,
		OccurredAt:   occurredAt,
	}
}

// Validate enforces the movement constraints. In strict mode the movement date
// may not lie in the future; backfill mode skips the date check so historical
// data can be loaded.
func (m *StockMovement) Validate(mode ValidateMode) error {
	if m.ProductID == uuid.Nil {
		return NewValidationError("product is required for a stock movement")
	}
	if m.Quantity <= 0 {
		return NewValidationError("movement quantity must be positive")
	}
	switch m.MovementType {
	case MovementIn:
		if m.SupplierID == nil || *m.SupplierID == uuid.Nil {
			return NewValidationError("supplier is required for stock IN movements")
		}
		if m.UnitCost.IsNegative() {
			return NewValidationError("unit_cost cannot be negative")
		}
		if m.RemainingQuantity < 0 || m.RemainingQuantity > m.Quantity {
			return NewValidationError("remaining_quantity must be between 0 and quantity")
		}
	case MovementOut:
		if m.SupplierID != nil {
			return NewValidationError("supplier must not be specified for stock OUT movements")
		}
	default:
		return NewValidationError("movement type must be IN or OUT")
	}
	if m.OccurredAt.IsZero() {
		return NewValidationError("movement date is required")
	}
	if mode == ModeStrict && m.OccurredAt.After(time.Now().Add(time.Minute)) {
		return NewValidationError("movement date cannot be in the future")
	}
	return nil
}

// IsDepleted reports whether an IN batch has no stock left to allocate.
func (m *StockMovement) IsDepleted() bool {
	return m.MovementType == MovementIn && m.RemainingQuantity == 0
}

// PrepareForStorage fills identity and timestamps before the first save.
func (m *StockMovement) PrepareForStorage() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now()
	if m.OccurredAt.IsZero() {
		m.OccurredAt = now
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
}
