// internal/core/domain/supplier.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Supplier is referenced by stock IN movements. Managed elsewhere; the core
// only needs its identity for receipt attribution.
type Supplier struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSupplier creates an active supplier.
func NewSupplier(name string) *Supplier {
	return &Supplier{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(name),
		IsActive: true,
	}
}

// Validate performs domain validation on the supplier.
func (s *Supplier) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("supplier name is required")
	}
	return nil
}

// PrepareForStorage fills identity and timestamps before the first save.
func (s *Supplier) PrepareForStorage() {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}
