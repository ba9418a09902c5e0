// internal/adapters/db/movement_repository.go
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// movementRepository implements ports.MovementRepository
type movementRepository struct {
	q      querier
	logger *slog.Logger
}

// NewMovementRepository creates a new stock movement repository
func NewMovementRepository(db *Database, logger *slog.Logger) ports.MovementRepository {
	return &movementRepository{
		q:      db,
		logger: logger.With(slog.String("repository", "movement")),
	}
}

func (r *movementRepository) WithTx(tx pgx.Tx) ports.MovementRepository {
	return &movementRepository{q: tx, logger: r.logger}
}

const movementColumns = `
	id, product_id, movement_type, quantity, remaining_quantity,
	unit_cost, supplier_id, reference, occurred_at, created_at`

// Save inserts a new stock movement
func (r *movementRepository) Save(ctx context.Context, m *domain.StockMovement) error {
	query := `
		INSERT INTO stock_movements (
			id, product_id, movement_type, quantity, remaining_quantity,
			unit_cost, supplier_id, reference, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.q.Exec(ctx, query,
		m.ID, m.ProductID, m.MovementType, m.Quantity, m.RemainingQuantity,
		m.UnitCost, m.SupplierID, nullIfEmpty(m.Reference), m.OccurredAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stock movement: %w", err)
	}

	r.logger.DebugContext(ctx, "stock movement saved",
		slog.String("movement_id", m.ID.String()),
		slog.String("product_id", m.ProductID.String()),
		slog.String("type", string(m.MovementType)),
		slog.Int("quantity", m.Quantity))
	return nil
}

// FindByID retrieves a movement by ID, or nil when absent
func (r *movementRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.StockMovement, error) {
	query := `SELECT` + movementColumns + ` FROM stock_movements WHERE id = $1`

	m, err := r.scanInto(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find stock movement: %w", err)
	}
	return m, nil
}

// AvailableBatchesForUpdate returns the product's open IN batches in FIFO
// order with their rows locked. Ordering by occurred_at with id as the
// tie-break makes concurrent allocators walk batches in the same sequence,
// which also rules out lock-order deadlocks on a single product.
func (r *movementRepository) AvailableBatchesForUpdate(ctx context.Context, productID uuid.UUID) ([]domain.StockMovement, error) {
	query := `SELECT` + movementColumns + `
		FROM stock_movements
		WHERE product_id = $1 AND movement_type = 'IN' AND remaining_quantity > 0
		ORDER BY occurred_at ASC, id ASC
		FOR UPDATE`

	rows, err := r.q.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.StockMovement
	for rows.Next() {
		m, err := r.scanInto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return batches, nil
}

// TotalAvailable sums the remaining quantity over the product's IN batches
func (r *movementRepository) TotalAvailable(ctx context.Context, productID uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(SUM(remaining_quantity), 0)
		FROM stock_movements
		WHERE product_id = $1 AND movement_type = 'IN'`

	var total int
	if err := r.q.QueryRow(ctx, query, productID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum available stock: %w", err)
	}
	return total, nil
}

// TotalAvailableMany sums remaining quantities for several products in one
// query. Products with no batches are present in the result with a zero.
func (r *movementRepository) TotalAvailableMany(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	totals := make(map[uuid.UUID]int, len(productIDs))
	if len(productIDs) == 0 {
		return totals, nil
	}
	for _, id := range productIDs {
		totals[id] = 0
	}

	query := `
		SELECT product_id, COALESCE(SUM(remaining_quantity), 0)
		FROM stock_movements
		WHERE product_id = ANY($1) AND movement_type = 'IN'
		GROUP BY product_id`

	rows, err := r.q.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to sum available stock: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var total int
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("failed to scan stock total: %w", err)
		}
		totals[id] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock totals: %w", err)
	}
	return totals, nil
}

// AdjustRemaining applies a delta to a batch's remaining quantity and returns
// the new value. The guard rejects both underflow and restoring past the
// original received quantity, so a buggy reversal cannot mint stock.
func (r *movementRepository) AdjustRemaining(ctx context.Context, batchID uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE stock_movements
		SET remaining_quantity = remaining_quantity + $2
		WHERE id = $1
		  AND movement_type = 'IN'
		  AND remaining_quantity + $2 >= 0
		  AND remaining_quantity + $2 <= quantity
		RETURNING remaining_quantity`

	var remaining int
	err := r.q.QueryRow(ctx, query, batchID, delta).Scan(&remaining)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.NewConsistencyError("remaining adjustment of %+d rejected for batch %s", delta, batchID)
		}
		return 0, fmt.Errorf("failed to adjust batch remaining: %w", err)
	}
	return remaining, nil
}

// List retrieves movements with filtering and pagination
func (r *movementRepository) List(ctx context.Context, params ports.MovementListParams) ([]*domain.StockMovement, int64, error) {
	qb := squirrel.Select(
		"id", "product_id", "movement_type", "quantity", "remaining_quantity",
		"unit_cost", "supplier_id", "reference", "occurred_at", "created_at",
	).
		From("stock_movements").
		PlaceholderFormat(squirrel.Dollar)

	if params.ProductID != nil {
		qb = qb.Where(squirrel.Eq{"product_id": *params.ProductID})
	}
	if params.SupplierID != nil {
		qb = qb.Where(squirrel.Eq{"supplier_id": *params.SupplierID})
	}
	if params.MovementType != "" {
		qb = qb.Where(squirrel.Eq{"movement_type": strings.ToUpper(params.MovementType)})
	}
	if params.From != nil {
		qb = qb.Where(squirrel.GtOrEq{"occurred_at": *params.From})
	}
	if params.To != nil {
		qb = qb.Where(squirrel.LtOrEq{"occurred_at": *params.To})
	}
	if params.AvailableOnly {
		qb = qb.Where(squirrel.Gt{"remaining_quantity": 0})
	}

	countSQL, countArgs, err := qb.Prefix("SELECT COUNT(*) FROM (").Suffix(") AS t").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var totalCount int64
	if err := r.q.QueryRow(ctx, countSQL, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	order := "occurred_at DESC, id DESC"
	if params.SortOrder == "asc" {
		order = "occurred_at ASC, id ASC"
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
		return nil, 0, fmt.Errorf("failed to query movements: %w", err)
	}
	movements, err := ScanMany(rows, func(rows pgx.Rows) (*domain.StockMovement, error) {
		return r.scanInto(rows)
	})
	if err != nil {
		return nil, 0, err
	}
	return movements, totalCount, nil
}

func (r *movementRepository) scanInto(row pgx.Row) (*domain.StockMovement, error) {
	m := &domain.StockMovement{}
	var reference sql.NullString
	err := row.Scan(
		&m.ID, &m.ProductID, &m.MovementType, &m.Quantity, &m.RemainingQuantity,
		&m.UnitCost, &m.SupplierID, &reference, &m.OccurredAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Reference = reference.String
	return m, nil
}
