// internal/core/domain/customer.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer carries the credit state mutated by credit-check sales.
// OutstandingBalance never drops below zero.
type Customer struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Email              string          `json:"email,omitempty"`
	Phone              string          `json:"phone,omitempty"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewCustomer creates an active customer with a zero balance.
func NewCustomer(name string, creditLimit decimal.Decimal) *Customer {
	return &Customer{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(name),
		CreditLimit: creditLimit,
		IsActive:    true,
	}
}

// Validate performs domain validation on the customer.
func (c *Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("customer name is required")
	}
	if c.CreditLimit.IsNegative() {
		return NewValidationError("credit_limit cannot be negative")
	}
	if c.OutstandingBalance.IsNegative() {
		return NewValidationError("outstanding_balance cannot be negative")
	}
	return nil
}

// AvailableCredit returns the credit headroom left for deferred sales.
func (c *Customer) AvailableCredit() decimal.Decimal {
	if c.CreditLimit.IsZero() {
		return decimal.Zero
	}
	return c.CreditLimit.Sub(c.OutstandingBalance)
}

// AddToBalance increases the outstanding balance by a positive amount.
func (c *Customer) AddToBalance(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return NewValidationError("balance adjustment cannot be negative")
	}
	c.OutstandingBalance = c.OutstandingBalance.Add(amount)
	c.UpdatedAt = time.Now()
	return nil
}

// ReduceBalance decreases the outstanding balance, flooring at zero.
func (c *Customer) ReduceBalance(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return NewValidationError("balance adjustment cannot be negative")
	}
	c.OutstandingBalance = c.OutstandingBalance.Sub(amount)
	if c.OutstandingBalance.IsNegative() {
		c.OutstandingBalance = decimal.Zero
	}
	c.UpdatedAt = time.Now()
	return nil
}

// PrepareForStorage fills identity and timestamps before the first save.
func (c *Customer) PrepareForStorage() {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}
