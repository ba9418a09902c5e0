// internal/handlers/dashboard.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	redis_a "github.com/emartell/storeflow-be/internal/adapters/redis_adapter"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DashboardHandler serves aggregate views over the catalog, the stock
// ledger, and sales.
type DashboardHandler struct {
	db          *db.Database
	cache       ports.CacheRepository
	checkWindow time.Duration
	logger      *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler. checkWindow is the
// horizon used for the "checks due soon" panel.
func NewDashboardHandler(database *db.Database, cache ports.CacheRepository, checkWindow time.Duration, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		db:          database,
		cache:       cache,
		checkWindow: checkWindow,
		logger:      logger.With(slog.String("handler", "dashboard")),
	}
}

// GetDashboard handles GET /api/v1/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cacheKey := redis_a.BuildKey(redis_a.PrefixDashboard, "summary")
	var dashboard DashboardData

	err := h.cache.GetOrSet(ctx, cacheKey, &dashboard, func() (interface{}, error) {
		return h.loadDashboardData(ctx)
	}, 5*time.Minute)

	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load dashboard", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, dashboard)
}

func (h *DashboardHandler) loadDashboardData(ctx context.Context) (*DashboardData, error) {
	dashboard := &DashboardData{
		Timestamp: time.Now(),
	}

	// Catalog and ledger totals. Inventory value is priced at batch cost,
	// summed over what actually remains in each IN batch.
	summaryQuery := `
		SELECT
			(SELECT COUNT(*) FROM products WHERE is_active = TRUE) AS active_products,
			(SELECT COALESCE(SUM(current_stock), 0) FROM products WHERE is_active = TRUE) AS stock_units,
			(SELECT COALESCE(SUM(remaining_quantity * unit_cost), 0)
			   FROM stock_movements WHERE movement_type = 'IN') AS inventory_value,
			(SELECT COUNT(*) FROM products
			  WHERE is_active = TRUE AND current_stock <= low_stock_threshold) AS low_stock_products
	`

	err := h.db.QueryRow(ctx, summaryQuery).Scan(
		&dashboard.Summary.ActiveProducts,
		&dashboard.Summary.StockUnits,
		&dashboard.Summary.InventoryValue,
		&dashboard.Summary.LowStockProducts,
	)
	if err != nil {
		return nil, err
	}

	salesQuery := `
		SELECT
			COUNT(*) AS total_sales,
			COALESCE(SUM(total_amount), 0) AS total_revenue,
			COUNT(*) FILTER (WHERE is_paid = FALSE) AS unpaid_sales,
			COALESCE(SUM(total_amount) FILTER (WHERE is_paid = FALSE), 0) AS unpaid_total,
			COUNT(*) FILTER (WHERE check_bounced = TRUE) AS bounced_checks
		FROM sales
	`

	err = h.db.QueryRow(ctx, salesQuery).Scan(
		&dashboard.Summary.TotalSales,
		&dashboard.Summary.TotalRevenue,
		&dashboard.Summary.UnpaidSales,
		&dashboard.Summary.UnpaidTotal,
		&dashboard.Summary.BouncedChecks,
	)
	if err != nil {
		return nil, err
	}

	outstandingQuery := `SELECT COALESCE(SUM(outstanding_balance), 0) FROM customers`
	if err := h.db.QueryRow(ctx, outstandingQuery).Scan(&dashboard.Summary.CustomerDebt); err != nil {
		return nil, err
	}

	recentQuery := `
		SELECT s.id, s.customer_id, c.name, s.payment_method, s.total_amount, s.is_paid, s.sale_date
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		ORDER BY s.sale_date DESC
		LIMIT 10
	`

	rows, err := h.db.Query(ctx, recentQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s RecentSale
		if err := rows.Scan(&s.ID, &s.CustomerID, &s.CustomerName, &s.PaymentMethod, &s.Total, &s.IsPaid, &s.SaleDate); err != nil {
			return nil, err
		}
		dashboard.RecentSales = append(dashboard.RecentSales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Unpaid, non-bounced checks whose due date falls inside the window.
	dueQuery := `
		SELECT s.id, s.customer_id, c.name, s.check_number, s.bank_name, s.check_date, s.total_amount
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.payment_method = 'credit_check'
		  AND s.is_paid = FALSE
		  AND s.check_bounced = FALSE
		  AND s.check_date BETWEEN NOW() AND NOW() + $1::interval
		ORDER BY s.check_date ASC
	`

	dueRows, err := h.db.Query(ctx, dueQuery, h.checkWindow.String())
	if err != nil {
		return nil, err
	}
	defer dueRows.Close()

	for dueRows.Next() {
		var c DueCheck
		if err := dueRows.Scan(&c.SaleID, &c.CustomerID, &c.CustomerName, &c.CheckNumber, &c.BankName, &c.DueDate, &c.Amount); err != nil {
			return nil, err
		}
		dashboard.ChecksDueSoon = append(dashboard.ChecksDueSoon, c)
	}
	if err := dueRows.Err(); err != nil {
		return nil, err
	}

	return dashboard, nil
}

// Type definitions

type DashboardData struct {
	Summary       DashboardSummary `json:"summary"`
	RecentSales   []RecentSale     `json:"recent_sales"`
	ChecksDueSoon []DueCheck       `json:"checks_due_soon"`
	Timestamp     time.Time        `json:"timestamp"`
}

type DashboardSummary struct {
	ActiveProducts   int64           `json:"active_products"`
	StockUnits       int64           `json:"stock_units"`
	InventoryValue   decimal.Decimal `json:"inventory_value"`
	LowStockProducts int64           `json:"low_stock_products"`
	TotalSales       int64           `json:"total_sales"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	UnpaidSales      int64           `json:"unpaid_sales"`
	UnpaidTotal      decimal.Decimal `json:"unpaid_total"`
	BouncedChecks    int64           `json:"bounced_checks"`
	CustomerDebt     decimal.Decimal `json:"customer_debt"`
}

type RecentSale struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	IsPaid        bool            `json:"is_paid"`
	SaleDate      time.Time       `json:"sale_date"`
}

type DueCheck struct {
	SaleID       uuid.UUID       `json:"sale_id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	CheckNumber  string          `json:"check_number"`
	BankName     string          `json:"bank_name"`
	DueDate      time.Time       `json:"due_date"`
	Amount       decimal.Decimal `json:"amount"`
}
