// internal/core/domain/sale.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod represents how a sale is settled.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentDebitCard    PaymentMethod = "debit_card"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCheck  PaymentMethod = "credit_check"
)

// PaidImmediately reports whether the method settles at sale creation.
// Only credit-check sales start out unpaid.
func (p PaymentMethod) PaidImmediately() bool {
	return p != PaymentCreditCheck
}

// RequiresCheckInfo reports whether check fields must be present.
func (p PaymentMethod) RequiresCheckInfo() bool {
	return p == PaymentCreditCheck
}

// Valid reports whether the payment method is one of the known values.
func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentDebitCard, PaymentCreditCard, PaymentBankTransfer, PaymentCreditCheck:
		return true
	}
	return false
}

// CheckDetails carries the deferred-check instrument fields of a credit-check
// sale. Nil for every other payment method.
type CheckDetails struct {
	CheckNumber  string     `json:"check_number"`
	BankName     string     `json:"bank_name"`
	CheckDate    time.Time  `json:"check_date"`
	Bounced      bool       `json:"bounced"`
	BouncedAt    *time.Time `json:"bounced_at,omitempty"`
	BouncedNotes string     `json:"bounced_notes,omitempty"`
}

// Sale is a completed sale transaction. TotalAmount always equals the sum of
// line totals. Lines are only removed together with their parent sale.
type Sale struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	SaleDate      time.Time       `json:"sale_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	IsPaid        bool            `json:"is_paid"`
	Check         *CheckDetails   `json:"check,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Lines         []SaleLine      `json:"lines,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewSale creates a sale header. Paid status follows the payment method.
func NewSale(customerID uuid.UUID, method PaymentMethod, check *CheckDetails) *Sale {
	now := time.Now()
	return &Sale{
		ID:            uuid.New(),
		CustomerID:    customerID,
		SaleDate:      now,
		PaymentMethod: method,
		IsPaid:        method.PaidImmediately(),
		Check:         check,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsCheckPayment reports whether the sale settles by deferred check.
func (s *Sale) IsCheckPayment() bool {
	return s.PaymentMethod == PaymentCreditCheck
}

// Validate checks the sale header. In strict mode a check date may not lie in
// the past; backfill mode skips that so the seeder can load historical sales.
func (s *Sale) Validate(mode ValidateMode) error {
	if s.CustomerID == uuid.Nil {
		return NewValidationError("customer is required")
	}
	if !s.PaymentMethod.Valid() {
		return NewValidationError("payment method %q is not recognized", s.PaymentMethod)
	}
	if s.IsCheckPayment() {
		if s.Check == nil {
			return NewValidationError("check details are required for check payments")
		}
		if strings.TrimSpace(s.Check.CheckNumber) == "" {
			return NewValidationError("check number is required for check payments")
		}
		if strings.TrimSpace(s.Check.BankName) == "" {
			return NewValidationError("bank name is required for check payments")
		}
		if s.Check.CheckDate.IsZero() {
			return NewValidationError("check date is required for check payments")
		}
		if mode == ModeStrict && s.Check.CheckDate.Before(startOfDay(time.Now())) {
			return NewValidationError("check date cannot be in the past")
		}
	} else if s.Check != nil {
		return NewValidationError("check details must be empty for %s payments", s.PaymentMethod)
	}
	return nil
}

// MarkPaid transitions the sale to paid. Bounced checks must be cleared first.
func (s *Sale) MarkPaid() error {
	if s.IsPaid {
		return ErrAlreadyPaid
	}
	if s.Check != nil && s.Check.Bounced {
		return ErrBouncedUnpaid
	}
	s.IsPaid = true
	s.UpdatedAt = time.Now()
	return nil
}

// MarkBounced records a bounced check. Only unpaid, non-bounced credit-check
// sales can bounce. Inventory stays allocated; a bounced check disputes the
// payment, not the shipment.
func (s *Sale) MarkBounced(notes string) error {
	if !s.IsCheckPayment() {
		return ErrNotCheckPayment
	}
	if s.IsPaid {
		return ErrAlreadyPaid
	}
	if s.Check.Bounced {
		return ErrAlreadyBounced
	}
	now := time.Now()
	s.Check.Bounced = true
	s.Check.BouncedAt = &now
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		s.Check.BouncedNotes = trimmed
	}
	s.UpdatedAt = now
	return nil
}

// ClearBounced removes the bounced status from a check sale.
func (s *Sale) ClearBounced() error {
	if !s.IsCheckPayment() {
		return ErrNotCheckPayment
	}
	if s.Check == nil || !s.Check.Bounced {
		return ErrNotBounced
	}
	s.Check.Bounced = false
	s.Check.BouncedAt = nil
	s.Check.BouncedNotes = ""
	s.UpdatedAt = time.Now()
	return nil
}

// IsCheckOverdue reports whether an unpaid check's date has passed.
func (s *Sale) IsCheckOverdue(now time.Time) bool {
	if !s.IsCheckPayment() || s.Check == nil || s.IsPaid {
		return false
	}
	return s.Check.CheckDate.Before(startOfDay(now))
}

// IsCheckDueSoon reports whether an unpaid check comes due within the window.
func (s *Sale) IsCheckDueSoon(now time.Time, window time.Duration) bool {
	if !s.IsCheckPayment() || s.Check == nil || s.IsPaid || s.Check.Bounced {
		return false
	}
	day := startOfDay(now)
	return !s.Check.CheckDate.Before(day) && !s.Check.CheckDate.After(day.Add(window))
}

// LineTotalSum returns the sum of all line totals.
func (s *Sale) LineTotalSum() decimal.Decimal {
	sum := decimal.Zero
	for i := range s.Lines {
		sum = sum.Add(s.Lines[i].LineTotal)
	}
	return sum
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
