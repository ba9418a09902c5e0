// internal/core/domain/saleline.go
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleLine records the consumption of one inventory batch by one sale. A
// requested line item fans out into one SaleLine per batch it drew from. The
// batch's unit cost and receipt date are copied onto the line so cost of goods
// and margins survive later batch mutation, and BatchID makes deletion restore
// exactly the batches the sale consumed.
type SaleLine struct {
	ID              uuid.UUID       `json:"id"`
	SaleID          uuid.UUID       `json:"sale_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Discount        decimal.Decimal `json:"discount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	BatchID         uuid.UUID       `json:"batch_id"`
	BatchUnitCost   decimal.Decimal `json:"batch_unit_cost"`
	BatchReceivedAt time.Time       `json:"batch_received_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewSaleLine builds a line for quantity units drawn from the given batch.
// The line total is unitPrice*quantity minus the discount apportioned to this
// line; a zero total is allowed (100% discount) but never a negative one.
func NewSaleLine(saleID uuid.UUID, batch *StockMovement, quantity int, unitPrice, discount decimal.Decimal) (*SaleLine, error) {
	if quantity <= 0 {
		return nil, NewValidationError("sale line quantity must be positive")
	}
	if unitPrice.Sign() <= 0 {
		return nil, NewValidationError("unit price must be greater than zero")
	}
	if discount.IsNegative() {
		return nil, NewValidationError("discount cannot be negative")
	}
	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	total := gross.Sub(discount).Round(2)
	if total.IsNegative() {
		return nil, NewValidationError("line total cannot be negative")
	}
	return &SaleLine{
		ID:              uuid.New(),
		SaleID:          saleID,
		ProductID:       batch.ProductID,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		Discount:        discount,
		LineTotal:       total,
		BatchID:         batch.ID,
		BatchUnitCost:   batch.UnitCost,
		BatchReceivedAt: batch.OccurredAt,
		CreatedAt:       time.Now(),
	}, nil
}

// CostOfGoods returns the acquisition cost of the units on this line.
func (l *SaleLine) CostOfGoods() decimal.Decimal {
	return l.BatchUnitCost.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Margin returns line revenue minus cost of goods.
func (l *SaleLine) Margin() decimal.Decimal {
	return l.LineTotal.Sub(l.CostOfGoods())
}
