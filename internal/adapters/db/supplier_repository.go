// internal/adapters/db/supplier_repository.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// supplierRepository implements ports.SupplierRepository
type supplierRepository struct {
	q      querier
	logger *slog.Logger
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *Database, logger *slog.Logger) ports.SupplierRepository {
	return &supplierRepository{
		q:      db,
		logger: logger.With(slog.String("repository", "supplier")),
	}
}

func (r *supplierRepository) WithTx(tx pgx.Tx) ports.SupplierRepository {
	return &supplierRepository{q: tx, logger: r.logger}
}

// Save inserts a new supplier
func (r *supplierRepository) Save(ctx context.Context, s *domain.Supplier) error {
	query := `
		INSERT INTO suppliers (id, name, email, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.Exec(ctx, query,
		s.ID, s.Name, nullIfEmpty(s.Email), nullIfEmpty(s.Phone),
		s.IsActive, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save supplier: %w", err)
	}

	r.logger.DebugContext(ctx, "supplier saved", slog.String("supplier_id", s.ID.String()))
	return nil
}

// FindByID retrieves a supplier by ID, or nil when absent
func (r *supplierRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Supplier, error) {
	query := `
		SELECT id, name, email, phone, is_active, created_at, updated_at
		FROM suppliers WHERE id = $1`

	s := &domain.Supplier{}
	var email, phone sql.NullString
	err := r.q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &email, &phone, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find supplier: %w", err)
	}
	s.Email = email.String
	s.Phone = phone.String
	return s, nil
}
