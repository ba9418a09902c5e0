// internal/adapters/db/customer_repository.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// customerRepository implements ports.CustomerRepository
type customerRepository struct {
	q      querier
	logger *slog.Logger
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *Database, logger *slog.Logger) ports.CustomerRepository {
	return &customerRepository{
		q:      db,
		logger: logger.With(slog.String("repository", "customer")),
	}
}

func (r *customerRepository) WithTx(tx pgx.Tx) ports.CustomerRepository {
	return &customerRepository{q: tx, logger: r.logger}
}

// Save inserts a new customer
func (r *customerRepository) Save(ctx context.Context, c *domain.Customer) error {
	query := `
		INSERT INTO customers (
			id, name, email, phone, credit_limit, outstanding_balance,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q.Exec(ctx, query,
		c.ID, c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone),
		c.CreditLimit, c.OutstandingBalance, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}

	r.logger.DebugContext(ctx, "customer saved", slog.String("customer_id", c.ID.String()))
	return nil
}

// FindByID retrieves a customer by ID, or nil when absent
func (r *customerRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	query := `
		SELECT id, name, email, phone, credit_limit, outstanding_balance,
			is_active, created_at, updated_at
		FROM customers WHERE id = $1`

	c := &domain.Customer{}
	var email, phone sql.NullString
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &email, &phone, &c.CreditLimit, &c.OutstandingBalance,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	c.Email = email.String
	c.Phone = phone.String
	return c, nil
}

// AdjustBalance applies a delta to the outstanding balance and returns the new
// value. Reductions floor at zero rather than going negative: a payment
// against an already-settled balance leaves it at zero.
func (r *customerRepository) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE customers
		SET outstanding_balance = GREATEST(outstanding_balance + $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING outstanding_balance`

	var balance decimal.Decimal
	err := r.q.QueryRow(ctx, query, id, delta).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, &domain.NotFoundError{Entity: "customer", ID: id}
		}
		return decimal.Zero, fmt.Errorf("failed to adjust customer balance: %w", err)
	}

	r.logger.DebugContext(ctx, "customer balance adjusted",
		slog.String("customer_id", id.String()),
		slog.String("delta", delta.StringFixed(2)),
		slog.String("balance", balance.StringFixed(2)))
	return balance, nil
}
