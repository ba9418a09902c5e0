// internal/core/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sale state transition errors
var (
	ErrAlreadyPaid     = errors.New("sale is already marked as paid")
	ErrNotCheckPayment = errors.New("sale is not a check payment")
	ErrAlreadyBounced  = errors.New("check is already marked as bounced")
	ErrNotBounced      = errors.New("check is not marked as bounced")
	ErrBouncedUnpaid   = errors.New("cannot mark a bounced check as paid before clearing it")
)

// ValidationError indicates malformed input rejected before any persistence.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Shortfall describes the stock gap for a single product.
type Shortfall struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductCode string    `json:"product_code,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	Required    int       `json:"required"`
	Available   int       `json:"available"`
}

// Missing returns the number of units that cannot be fulfilled.
func (s Shortfall) Missing() int {
	return s.Required - s.Available
}

// InsufficientStockError is the business rejection for a sale that cannot be
// fulfilled. It carries every product's shortfall, not just the first.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortfalls) == 0 {
		return "insufficient stock"
	}
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		name := s.ProductName
		if name == "" {
			name = s.ProductID.String()
		}
		parts = append(parts, fmt.Sprintf("product %q: required %d, available %d, short %d",
			name, s.Required, s.Available, s.Missing()))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// InternalConsistencyError reports a broken ledger invariant (negative stock,
// counter drift). This is a bug in allocation or reversal, never user error.
type InternalConsistencyError struct {
	Message string
}

func (e *InternalConsistencyError) Error() string {
	return "internal consistency violation: " + e.Message
}

// NewConsistencyError builds an InternalConsistencyError with a formatted message.
func NewConsistencyError(format string, args ...any) *InternalConsistencyError {
	return &InternalConsistencyError{Message: fmt.Sprintf(format, args...)}
}

// IsBusinessError reports whether err is an expected, user-facing rejection
// that needs no error-level logging.
func IsBusinessError(err error) bool {
	var ve *ValidationError
	var ise *InsufficientStockError
	var nfe *NotFoundError
	return errors.As(err, &ve) || errors.As(err, &ise) || errors.As(err, &nfe) ||
		errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrNotCheckPayment) ||
		errors.Is(err, ErrAlreadyBounced) || errors.Is(err, ErrNotBounced) ||
		errors.Is(err, ErrBouncedUnpaid)
}
