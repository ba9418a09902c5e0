// internal/adapters/db/product_repository.go
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

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// productRepository implements ports.ProductRepository
type productRepository struct {
	q      querier
	logger *slog.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *Database, logger *slog.Logger) ports.ProductRepository {
	return &productRepository{
		q:      db,
		logger: logger.With(slog.String("repository", "product")),
	}
}

func (r *productRepository) WithTx(tx pgx.Tx) ports.ProductRepository {
	return &productRepository{q: tx, logger: r.logger}
}

const productColumns = `
	id, code, name, description, fixed_price, discount_pct,
	current_stock, low_stock_threshold, is_active, created_at, updated_at`

// Save inserts a new product
func (r *productRepository) Save(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (
			id, code, name, description, fixed_price, discount_pct,
			current_stock, low_stock_threshold, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.q.Exec(ctx, query,
		p.ID, p.Code, p.Name, nullIfEmpty(p.Description), p.FixedPrice, p.DiscountPct,
		p.CurrentStock, p.LowStockThreshold, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}

	r.logger.DebugContext(ctx, "product saved",
		slog.String("product_id", p.ID.String()),
		slog.String("code", p.Code))
	return nil
}

// Update rewrites the product's descriptive fields. The stock counter is
// only ever moved through AdjustStock.
func (r *productRepository) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products SET
			code = $2, name = $3, description = $4, fixed_price = $5,
			discount_pct = $6, low_stock_threshold = $7, is_active = $8, updated_at = $9
		WHERE id = $1`

	p.UpdatedAt = time.Now()
	tag, err := r.q.Exec(ctx, query,
		p.ID, p.Code, p.Name, nullIfEmpty(p.Description), p.FixedPrice,
		p.DiscountPct, p.LowStockThreshold, p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "product", ID: p.ID}
	}
	return nil
}

// FindByID retrieves a product by ID, or nil when absent
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// FindByIDForUpdate retrieves a product by ID with its row locked for the
// duration of the enclosing transaction
func (r *productRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// FindByCode retrieves a product by its unique code, or nil when absent
func (r *productRepository) FindByCode(ctx context.Context, code string) (*domain.Product, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE code = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, code))
}

// AdjustStock applies a delta to the cached stock counter and returns the new
// value. The WHERE guard keeps the counter from ever going negative; a sale
// that would overdraw simply matches no row.
func (r *productRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE products
		SET current_stock = current_stock + $2, updated_at = NOW()
		WHERE id = $1 AND current_stock + $2 >= 0
		RETURNING current_stock`

	var newStock int
	err := r.q.QueryRow(ctx, query, id, delta).Scan(&newStock)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.NewConsistencyError("stock adjustment of %+d rejected for product %s", delta, id)
		}
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}
	return newStock, nil
}

// List retrieves products with filtering and pagination
func (r *productRepository) List(ctx context.Context, params ports.ProductListParams) ([]*domain.Product, int64, error) {
	qb := squirrel.Select(
		"id", "code", "name", "description", "fixed_price", "discount_pct",
		"current_stock", "low_stock_threshold", "is_active", "created_at", "updated_at",
	).
		From("products").
		PlaceholderFormat(squirrel.Dollar)

	if params.Search != "" {
		qb = qb.Where(squirrel.Or{
			squirrel.ILike{"name": "%" + params.Search + "%"},
			squirrel.ILike{"code": "%" + params.Search + "%"},
		})
	}
	if params.ActiveOnly {
		qb = qb.Where(squirrel.Eq{"is_active": true})
	}

	countSQL, countArgs, err := qb.Prefix("SELECT COUNT(*) FROM (").Suffix(") AS t").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var totalCount int64
	if err := r.q.QueryRow(ctx, countSQL, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	orderBy := "code ASC"
	if params.SortBy != "" {
		direction := "ASC"
		if params.SortOrder == "desc" {
			direction = "DESC"
		}
		orderBy = fmt.Sprintf("%s %s", sortColumn(params.SortBy), direction)
	}
	qb = qb.OrderBy(orderBy)
	if params.PageSize > 0 {
		qb = qb.Limit(uint64(params.PageSize)).Offset(uint64((params.Page - 1) * params.PageSize))
	}

	querySQL, args, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}
	rows, err := r.q.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	products, err := ScanMany(rows, r.scanRow)
	if err != nil {
		return nil, 0, err
	}
	return products, totalCount, nil
}

// LowStock returns active products whose cached counter is at or below their
// low-stock threshold
func (r *productRepository) LowStock(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT` + productColumns + `
		FROM products
		WHERE is_active = TRUE AND current_stock <= low_stock_threshold
		ORDER BY current_stock ASC, code ASC`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock products: %w", err)
	}
	return ScanMany(rows, r.scanRow)
}

// Deactivate soft-retires a product; its ledger history stays intact
func (r *productRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active = TRUE`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "product", ID: id}
	}

	r.logger.InfoContext(ctx, "product deactivated", slog.String("product_id", id.String()))
	return nil
}

func (r *productRepository) scanOne(row pgx.Row) (*domain.Product, error) {
	p, err := r.scanInto(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return p, nil
}

func (r *productRepository) scanRow(rows pgx.Rows) (*domain.Product, error) {
	return r.scanInto(rows)
}

func (r *productRepository) scanInto(row pgx.Row) (*domain.Product, error) {
	p := &domain.Product{}
	var description sql.NullString
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &description, &p.FixedPrice, &p.DiscountPct,
		&p.CurrentStock, &p.LowStockThreshold, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	return p, nil
}

// sortColumn whitelists sortable columns; anything unknown falls back to code
func sortColumn(requested string) string {
	switch requested {
	case "name", "code", "current_stock", "fixed_price", "created_at":
		return requested
	}
	return "code"
}

// nullIfEmpty maps empty strings to SQL NULL
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
