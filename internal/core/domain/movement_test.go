package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emartell/storeflow-be/internal/core/domain"
)

func TestStockMovement_Validate(t *testing.T) {
	productID := uuid.New()
	supplierID := uuid.New()
	yesterday := time.Now().Add(-24 * time.Hour)
	nextWeek := time.Now().Add(7 * 24 * time.Hour)

	tests := []struct {
		name      string
		movement  *domain.StockMovement
		mode      domain.ValidateMode
		wantError bool
		errorMsg  string
	}{
		{
			name:     "valid_receipt",
			movement: domain.NewStockReceipt(productID, 10, decimal.NewFromFloat(2.00), supplierID, yesterday),
			mode:     domain.ModeStrict,
		},
		{
			name:     "valid_egress",
			movement: domain.NewStockEgress(productID, 3, yesterday),
			mode:     domain.ModeStrict,
		},
		{
			name:      "missing_product",
			movement:  domain.NewStockReceipt(uuid.Nil, 10, decimal.NewFromFloat(2.00), supplierID, yesterday),
			mode:      domain.ModeStrict,
			wantError: true,
			errorMsg:  "product is required",
		},
		{
			name:      "zero_quantity",
			movement:  domain.NewStockReceipt(productID, 0, decimal.NewFromFloat(2.00), supplierID, yesterday),
			mode:      domain.ModeStrict,
			wantError: true,
			errorMsg:  "quantity must be positive",
		},
		{
			name:      "receipt_without_supplier",
			movement:  domain.NewStockReceipt(productID, 10, decimal.NewFromFloat(2.00), uuid.Nil, yesterday),
			mode:      domain.ModeStrict,
			wantError: true,
			errorMsg:  "supplier is required",
		},
		{
			name: "negative_unit_cost",
			movement: domain.NewStockReceipt(productID, 10, decimal.NewFromFloat(-1.00), supplierID,
				yesterday),
			mode:      domain.ModeStrict,
			wantError: true,
			errorMsg:  "unit_cost cannot be negative",
		},
		{
			name: "egress_with_supplier_rejected",
			movement: func() *domain.StockMovement {
				m := domain.NewStockEgress(productID, 3, yesterday)
				m.SupplierID = &supplierID
				return m
			}(),
			mode:      domain.ModeStrict,
			wantError: true,
			errorMsg:  "supplier must not be specified",
		},
		{
			name: "remaining_above_quantity_rejected",
			movement: func() *domain.StockMovement {
				m := domain.NewStockReceipt(productID, 10, decimal.NewFromFloat(2.00), supplierID, yesterday)
				m.RemainingQuantity = 11
				return m
			}(),
			mode:      domain.ModeStrict,
			wantError: true,
			errorMsg:  "remaining_quantity must be between 0 and quantity",
		},
		{
			name:      "future_date_rejected_in_strict_mode",
			movement:  domain.NewStockReceipt(productID, 10, decimal.NewFromFloat(2.00), supplierID, nextWeek),
			mode:      domain.ModeStrict,
			wantError: true,
			errorMsg:  "movement date cannot be in the future",
		},
		{
			name:     "future_date_allowed_in_backfill_mode",
			movement: domain.NewStockReceipt(productID, 10, decimal.NewFromFloat(2.00), supplierID, nextWeek),
			mode:     domain.ModeBackfill,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.movement.Validate(tt.mode)
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewStockReceipt_FullQuantityRemaining(t *testing.T) {
	m := domain.NewStockReceipt(uuid.New(), 25, decimal.NewFromFloat(1.50), uuid.New(), time.Now())
	assert.Equal(t, domain.MovementIn, m.MovementType)
	assert.Equal(t, 25, m.Quantity)
	assert.Equal(t, 25, m.RemainingQuantity)
	assert.False(t, m.IsDepleted())
}

func TestStockMovement_IsDepleted(t *testing.T) {
	batch := domain.NewStockReceipt(uuid.New(), 5, decimal.NewFromFloat(2.00), uuid.New(), time.Now())
	batch.RemainingQuantity = 0
	assert.True(t, batch.IsDepleted())

	// OUT movements always carry zero remaining but are never "depleted".
	egress := domain.NewStockEgress(uuid.New(), 5, time.Now())
	assert.False(t, egress.IsDepleted())
}
