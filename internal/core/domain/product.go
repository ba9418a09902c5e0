// internal/core/domain/product.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a sellable item. CurrentStock is a denormalized counter
// that must equal the sum of remaining quantities over the product's IN
// batches at every commit point. Products are never hard-deleted, only
// deactivated.
type Product struct {
	ID                uuid.UUID       `json:"id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	FixedPrice        decimal.Decimal `json:"fixed_price"`
	DiscountPct       decimal.Decimal `json:"discount_pct"`
	CurrentStock      int             `json:"current_stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewProduct creates a product with defaults applied.
func NewProduct(code, name string, fixedPrice decimal.Decimal) *Product {
	return &Product{
		ID:         uuid.New(),
		Code:       strings.TrimSpace(code),
		Name:       strings.TrimSpace(name),
		FixedPrice: fixedPrice,
		IsActive:   true,
	}
}

// Validate performs domain validation on the product.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return NewValidationError("product code is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("product name is required")
	}
	if p.FixedPrice.IsNegative() {
		return NewValidationError("fixed_price cannot be negative")
	}
	if p.DiscountPct.IsNegative() || p.DiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		return NewValidationError("discount_pct must be between 0 and 100")
	}
	if p.CurrentStock < 0 {
		return NewValidationError("current_stock cannot be negative")
	}
	if p.LowStockThreshold < 0 {
		return NewValidationError("low_stock_threshold cannot be negative")
	}
	return nil
}

// IsLowStock reports whether the cached counter is at or below the threshold.
func (p *Product) IsLowStock() bool {
	return p.CurrentStock <= p.LowStockThreshold
}

// DiscountedPrice returns the fixed price after the product-level discount.
func (p *Product) DiscountedPrice() decimal.Decimal {
	if p.DiscountPct.IsZero() {
		return p.FixedPrice
	}
	discount := p.FixedPrice.Mul(p.DiscountPct).Div(decimal.NewFromInt(100))
	return p.FixedPrice.Sub(discount)
}

// PrepareForStorage fills identity and timestamps before the first save.
func (p *Product) PrepareForStorage() {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}
