// internal/adapters/db/sale_repository.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// saleRepository implements ports.SaleRepository
type saleRepository struct {
	q      querier
	logger *slog.Logger
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *Database, logger *slog.Logger) ports.SaleRepository {
	return &saleRepository{
		q:      db,
		logger: logger.With(slog.String("repository", "sale")),
	}
}

func (r *saleRepository) WithTx(tx pgx.Tx) ports.SaleRepository {
	return &saleRepository{q: tx, logger: r.logger}
}

const saleColumns = `
	id, customer_id, sale_date, total_amount, payment_method, is_paid,
	check_number, bank_name, check_date, check_bounced, bounced_at, bounced_notes,
	notes, created_at, updated_at`

// SaveHeader inserts the sale header; lines follow separately once the
// allocator has produced them.
func (r *saleRepository) SaveHeader(ctx context.Context, s *domain.Sale) error {
	query := `
		INSERT INTO sales (
			id, customer_id, sale_date, total_amount, payment_method, is_paid,
			check_number, bank_name, check_date, check_bounced, bounced_at, bounced_notes,
			notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	var checkNumber, bankName, bouncedNotes interface{}
	var checkDate, bouncedAt interface{}
	bounced := false
	if s.Check != nil {
		checkNumber = s.Check.CheckNumber
		bankName = s.Check.BankName
		checkDate = s.Check.CheckDate
		bounced = s.Check.Bounced
		if s.Check.BouncedAt != nil {
			bouncedAt = *s.Check.BouncedAt
		}
		if s.Check.BouncedNotes != "" {
			bouncedNotes = s.Check.BouncedNotes
		}
	}

	_, err := r.q.Exec(ctx, query,
		s.ID, s.CustomerID, s.SaleDate, s.TotalAmount, s.PaymentMethod, s.IsPaid,
		checkNumber, bankName, checkDate, bounced, bouncedAt, bouncedNotes,
		nullIfEmpty(s.Notes), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sale header: %w", err)
	}

	r.logger.DebugContext(ctx, "sale header saved",
		slog.String("sale_id", s.ID.String()),
		slog.String("customer_id", s.CustomerID.String()))
	return nil
}

// InsertLines persists a batch of sale lines in one round trip
func (r *saleRepository) InsertLines(ctx context.Context, lines []domain.SaleLine) error {
	if len(lines) == 0 {
		return nil
	}

	qb := squirrel.Insert("sale_lines").
		Columns("id", "sale_id", "product_id", "quantity", "unit_price", "discount",
			"line_total", "batch_id", "batch_unit_cost", "batch_received_at", "created_at").
		PlaceholderFormat(squirrel.Dollar)
	for _, l := range lines {
		qb = qb.Values(l.ID, l.SaleID, l.ProductID, l.Quantity, l.UnitPrice, l.Discount,
			l.LineTotal, l.BatchID, l.BatchUnitCost, l.BatchReceivedAt, l.CreatedAt)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build line insert: %w", err)
	}
	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert sale lines: %w", err)
	}
	return nil
}

// FindByID retrieves a sale header by ID, or nil when absent
func (r *saleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	query := `SELECT` + saleColumns + ` FROM sales WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// FindByIDForUpdate retrieves a sale header with its row locked
func (r *saleRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	query := `SELECT` + saleColumns + ` FROM sales WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// FindLines retrieves all lines of a sale in insertion order
func (r *saleRepository) FindLines(ctx context.Context, saleID uuid.UUID) ([]domain.SaleLine, error) {
	query := `
		SELECT id, sale_id, product_id, quantity, unit_price, discount,
			line_total, batch_id, batch_unit_cost, batch_received_at, created_at
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.q.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.SaleLine
	for rows.Next() {
		var l domain.SaleLine
		err := rows.Scan(
			&l.ID, &l.SaleID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Discount,
			&l.LineTotal, &l.BatchID, &l.BatchUnitCost, &l.BatchReceivedAt, &l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale lines: %w", err)
	}
	return lines, nil
}

// UpdateTotal rewrites the sale total
func (r *saleRepository) UpdateTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	query := `UPDATE sales SET total_amount = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, total)
	if err != nil {
		return fmt.Errorf("failed to update sale total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "sale", ID: id}
	}
	return nil
}

// UpdateStatus persists the payment and bounce state of a sale
func (r *saleRepository) UpdateStatus(ctx context.Context, s *domain.Sale) error {
	query := `
		UPDATE sales SET
			is_paid = $2, check_bounced = $3, bounced_at = $4, bounced_notes = $5, updated_at = $6
		WHERE id = $1`

	bounced := false
	var bouncedAt interface{}
	var bouncedNotes interface{}
	if s.Check != nil {
		bounced = s.Check.Bounced
		if s.Check.BouncedAt != nil {
			bouncedAt = *s.Check.BouncedAt
		}
		if s.Check.BouncedNotes != "" {
			bouncedNotes = s.Check.BouncedNotes
		}
	}

	tag, err := r.q.Exec(ctx, query, s.ID, s.IsPaid, bounced, bouncedAt, bouncedNotes, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update sale status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "sale", ID: s.ID}
	}
	return nil
}

// Delete removes a sale; lines go with it via ON DELETE CASCADE
func (r *saleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sales WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "sale", ID: id}
	}

	r.logger.InfoContext(ctx, "sale deleted", slog.String("sale_id", id.String()))
	return nil
}

// List retrieves sales with filtering and pagination
func (r *saleRepository) List(ctx context.Context, params ports.SaleListParams) ([]*domain.Sale, int64, error) {
	qb := squirrel.Select(
		"id", "customer_id", "sale_date", "total_amount", "payment_method", "is_paid",
		"check_number", "bank_name", "check_date", "check_bounced", "bounced_at", "bounced_notes",
		"notes", "created_at", "updated_at",
	).
		From("sales").
		PlaceholderFormat(squirrel.Dollar)

	if params.CustomerID != nil {
		qb = qb.Where(squirrel.Eq{"customer_id": *params.CustomerID})
	}
	if params.UnpaidOnly {
		qb = qb.Where(squirrel.Eq{"is_paid": false})
	}
	if params.BouncedOnly {
		qb = qb.Where(squirrel.Eq{"check_bounced": true})
	}
	if params.From != nil {
		qb = qb.Where(squirrel.GtOrEq{"sale_date": *params.From})
	}
	if params.To != nil {
		qb = qb.Where(squirrel.LtOrEq{"sale_date": *params.To})
	}

	countSQL, countArgs, err := qb.Prefix("SELECT COUNT(*) FROM (").Suffix(") AS t").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var totalCount int64
	if err := r.q.QueryRow(ctx, countSQL, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count sales: %w", err)
	}

	order := "sale_date DESC, id DESC"
	if params.SortOrder == "asc" {
		order = "sale_date ASC, id ASC"
	}
	qb = qb.OrderBy(order)
	if params.PageSize > 0 {
		qb = qb.Limit(uint64(params.PageSize)).Offset(uint64((params.Page - 1) * params.PageSize))
	}

	querySQL, args, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}
	rows, err := r.q.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sales: %w", err)
	}
	sales, err := ScanMany(rows, func(rows pgx.Rows) (*domain.Sale, error) {
		return r.scanInto(rows)
	})
	if err != nil {
		return nil, 0, err
	}
	return sales, totalCount, nil
}

// ChecksDueBetween returns unpaid, non-bounced check sales whose check date
// falls inside the window. Used by the reminder worker.
func (r *saleRepository) ChecksDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Sale, error) {
	query := `SELECT` + saleColumns + `
		FROM sales
		WHERE payment_method = 'credit_check'
		  AND is_paid = FALSE
		  AND check_bounced = FALSE
		  AND check_date BETWEEN $1 AND $2
		ORDER BY check_date ASC`

	rows, err := r.q.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query due checks: %w", err)
	}
	return ScanMany(rows, func(rows pgx.Rows) (*domain.Sale, error) {
		return r.scanInto(rows)
	})
}

func (r *saleRepository) scanOne(row pgx.Row) (*domain.Sale, error) {
	s, err := r.scanInto(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find sale: %w", err)
	}
	return s, nil
}

func (r *saleRepository) scanInto(row pgx.Row) (*domain.Sale, error) {
	s := &domain.Sale{}
	var checkNumber, bankName, bouncedNotes, notes sql.NullString
	var checkDate, bouncedAt sql.NullTime
	var bounced bool

	err := row.Scan(
		&s.ID, &s.CustomerID, &s.SaleDate, &s.TotalAmount, &s.PaymentMethod, &s.IsPaid,
		&checkNumber, &bankName, &checkDate, &bounced, &bouncedAt, &bouncedNotes,
		&notes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Notes = notes.String
	if s.PaymentMethod == domain.PaymentCreditCheck {
		s.Check = &domain.CheckDetails{
			CheckNumber:  checkNumber.String,
			BankName:     bankName.String,
			CheckDate:    checkDate.Time,
			Bounced:      bounced,
			BouncedNotes: bouncedNotes.String,
		}
		if bouncedAt.Valid {
			t := bouncedAt.Time
			s.Check.BouncedAt = &t
		}
	}
	return s, nil
}
