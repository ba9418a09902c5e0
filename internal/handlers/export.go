// internal/handlers/export.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"

	redis_a "github.com/emartell/storeflow-be/internal/adapters/redis_adapter"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// ExportParams defines parameters for export operations
type ExportParams struct {
	DateFrom   *time.Time `json:"date_from"`
	DateTo     *time.Time `json:"date_to"`
	UnpaidOnly bool       `json:"unpaid_only"`
	Format     string     `json:"format"`
}

// SaleExportRow is one sale line flattened with its sale header,
// customer, product, and costing batch.
type SaleExportRow struct {
	SaleID        string
	SaleDate      time.Time
	CustomerName  string
	PaymentMethod string
	IsPaid        bool
	CheckBounced  bool
	ProductCode   string
	ProductName   string
	Quantity      int
	UnitPrice     decimal.Decimal
	UnitCost      decimal.Decimal
	Discount      decimal.Decimal
	LineTotal     decimal.Decimal
	BatchID       string
	BatchDate     time.Time
}

// LedgerExportRow is one IN batch with its remaining balance.
type LedgerExportRow struct {
	ProductCode  string
	ProductName  string
	SupplierName string
	Quantity     int
	Remaining    int
	UnitCost     decimal.Decimal
	OccurredAt   time.Time
	Reference    string
}

// JSONExportResponse represents the JSON export response structure
type JSONExportResponse struct {
	Sales    []map[string]any `json:"sales"`
	Metadata ExportMetadata   `json:"metadata"`
}

// ExportMetadata contains metadata about the export
type ExportMetadata struct {
	ExportDate time.Time  `json:"export_date"`
	TotalRows  int        `json:"total_rows"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	UnpaidOnly bool       `json:"unpaid_only"`
}

// ExportHandler handles export operations
type ExportHandler struct {
	db     ports.Database
	cache  ports.CacheRepository
	logger *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(db ports.Database, cache ports.CacheRepository, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		db:     db,
		cache:  cache,
		logger: logger.With(slog.String("handler", "export")),
	}
}

// ExportExcel handles GET /api/v1/export/excel
func (h *ExportHandler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := h.parseExportParams(r)

	h.logger.InfoContext(ctx, "starting Excel export",
		slog.Any("params", params))

	sales, err := h.getSaleRows(ctx, params)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to retrieve sale rows", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "failed to retrieve data")
		return
	}

	ledger, err := h.getLedgerRows(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to retrieve ledger rows", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "failed to retrieve data")
		return
	}

	excelData, err := h.generateExcelFile(sales, ledger)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate Excel file", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "failed to generate Excel file")
		return
	}

	filename := fmt.Sprintf("sales_export_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(excelData)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if _, err := w.Write(excelData); err != nil {
		h.logger.ErrorContext(ctx, "failed to write Excel response", slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(ctx, "Excel export completed",
		slog.Int("sale_rows", len(sales)),
		slog.Int("ledger_rows", len(ledger)),
		slog.String("filename", filename))
}

// ExportJSON handles GET /api/v1/export/json
func (h *ExportHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := h.parseExportParams(r)

	cacheKey := redis_a.BuildKey(redis_a.PrefixExport, "json", h.getCacheKeyFromParams(params))
	var cachedData []byte
	if err := h.cache.Get(ctx, cacheKey, &cachedData); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.Header().Set("Content-Length", strconv.Itoa(len(cachedData)))

		if _, err := w.Write(cachedData); err != nil {
			h.logger.ErrorContext(ctx, "failed to write cached JSON response", slog.String("error", err.Error()))
		}
		return
	}

	sales, err := h.getSaleRows(ctx, params)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to retrieve sale rows", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "failed to retrieve data")
		return
	}

	jsonData := make([]map[string]any, 0, len(sales))
	for i := range sales {
		jsonData = append(jsonData, h.rowToJSONMap(&sales[i]))
	}

	response := JSONExportResponse{
		Sales: jsonData,
		Metadata: ExportMetadata{
			ExportDate: time.Now(),
			TotalRows:  len(jsonData),
			DateFrom:   params.DateFrom,
			DateTo:     params.DateTo,
			UnpaidOnly: params.UnpaidOnly,
		},
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal JSON response", slog.String("error", err.Error()))
		respondError(w, h.logger, http.StatusInternalServerError, "failed to generate JSON")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Header().Set("Content-Length", strconv.Itoa(len(responseData)))

	if _, err := w.Write(responseData); err != nil {
		h.logger.ErrorContext(ctx, "failed to write JSON response", slog.String("error", err.Error()))
		return
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := h.cache.Set(cacheCtx, cacheKey, responseData); err != nil {
			h.logger.WarnContext(cacheCtx, "failed to cache JSON response", slog.String("error", err.Error()))
		}
	}()

	h.logger.InfoContext(ctx, "JSON export completed",
		slog.Int("total_rows", len(sales)))
}

// Helper methods

func (h *ExportHandler) parseExportParams(r *http.Request) *ExportParams {
	params := &ExportParams{}

	if from := r.URL.Query().Get("date_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			params.DateFrom = &t
		}
	}

	if to := r.URL.Query().Get("date_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			params.DateTo = &t
		}
	}

	params.UnpaidOnly = r.URL.Query().Get("unpaid") == "true"

	params.Format = r.URL.Query().Get("format")
	if params.Format == "" {
		params.Format = "xlsx"
	}

	return params
}

func (h *ExportHandler) getSaleRows(ctx context.Context, params *ExportParams) ([]SaleExportRow, error) {
	query := `
		SELECT
			s.id, s.sale_date, c.name, s.payment_method, s.is_paid, s.check_bounced,
			p.code, p.name, sl.quantity, sl.unit_price, sl.batch_unit_cost, sl.discount, sl.line_total,
			sl.batch_id, sl.batch_received_at
		FROM sale_lines sl
		JOIN sales s ON s.id = sl.sale_id
		JOIN customers c ON c.id = s.customer_id
		JOIN products p ON p.id = sl.product_id
		WHERE 1=1
	`

	var args []any
	if params.DateFrom != nil {
		args = append(args, *params.DateFrom)
		query += fmt.Sprintf(" AND s.sale_date >= $%d", len(args))
	}
	if params.DateTo != nil {
		args = append(args, *params.DateTo)
		query += fmt.Sprintf(" AND s.sale_date <= $%d", len(args))
	}
	if params.UnpaidOnly {
		query += " AND s.is_paid = FALSE"
	}
	query += " ORDER BY s.sale_date DESC, sl.created_at ASC"

	rows, err := h.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale rows: %w", err)
	}
	defer rows.Close()

	var data []SaleExportRow
	for rows.Next() {
		var row SaleExportRow
		if err := rows.Scan(
			&row.SaleID, &row.SaleDate, &row.CustomerName, &row.PaymentMethod, &row.IsPaid, &row.CheckBounced,
			&row.ProductCode, &row.ProductName, &row.Quantity, &row.UnitPrice, &row.UnitCost, &row.Discount,
			&row.LineTotal, &row.BatchID, &row.BatchDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sale row: %w", err)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale rows: %w", err)
	}

	return data, nil
}

func (h *ExportHandler) getLedgerRows(ctx context.Context) ([]LedgerExportRow, error) {
	query := `
		SELECT
			p.code, p.name, COALESCE(sup.name, ''),
			m.quantity, m.remaining_quantity, m.unit_cost, m.occurred_at, COALESCE(m.reference, '')
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		LEFT JOIN suppliers sup ON sup.id = m.supplier_id
		WHERE m.movement_type = 'IN'
		ORDER BY p.code ASC, m.occurred_at ASC, m.id ASC
	`

	rows, err := h.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger rows: %w", err)
	}
	defer rows.Close()

	var data []LedgerExportRow
	for rows.Next() {
		var row LedgerExportRow
		if err := rows.Scan(
			&row.ProductCode, &row.ProductName, &row.SupplierName,
			&row.Quantity, &row.Remaining, &row.UnitCost, &row.OccurredAt, &row.Reference,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return data, nil
}

func (h *ExportHandler) generateExcelFile(sales []SaleExportRow, ledger []LedgerExportRow) ([]byte, error) {
	file := xlsx.NewFile()

	salesSheet, err := file.AddSheet("Sales")
	if err != nil {
		return nil, fmt.Errorf("failed to add sales worksheet: %w", err)
	}

	salesHeaders := []string{
		"Sale ID", "Date", "Customer", "Payment Method", "Paid", "Bounced",
		"Product Code", "Product Name", "Quantity", "Unit Price", "Unit Cost",
		"Discount", "Line Total", "Batch ID", "Batch Date",
	}
	h.addHeaderRow(salesSheet, salesHeaders)

	for i := range sales {
		row := &sales[i]
		dataRow := salesSheet.AddRow()
		for _, value := range []string{
			row.SaleID,
			row.SaleDate.Format("2006-01-02 15:04:05"),
			row.CustomerName,
			row.PaymentMethod,
			h.yesNo(row.IsPaid),
			h.yesNo(row.CheckBounced),
			row.ProductCode,
			row.ProductName,
			strconv.Itoa(row.Quantity),
			row.UnitPrice.StringFixed(2),
			row.UnitCost.StringFixed(2),
			row.Discount.StringFixed(2),
			row.LineTotal.StringFixed(2),
			row.BatchID,
			row.BatchDate.Format("2006-01-02"),
		} {
			dataRow.AddCell().Value = value
		}
	}

	ledgerSheet, err := file.AddSheet("Stock Ledger")
	if err != nil {
		return nil, fmt.Errorf("failed to add ledger worksheet: %w", err)
	}

	ledgerHeaders := []string{
		"Product Code", "Product Name", "Supplier", "Received", "Remaining",
		"Unit Cost", "Remaining Value", "Received At", "Reference",
	}
	h.addHeaderRow(ledgerSheet, ledgerHeaders)

	for i := range ledger {
		row := &ledger[i]
		remainingValue := row.UnitCost.Mul(decimal.NewFromInt(int64(row.Remaining)))
		dataRow := ledgerSheet.AddRow()
		for _, value := range []string{
			row.ProductCode,
			row.ProductName,
			row.SupplierName,
			strconv.Itoa(row.Quantity),
			strconv.Itoa(row.Remaining),
			row.UnitCost.StringFixed(2),
			remainingValue.StringFixed(2),
			row.OccurredAt.Format("2006-01-02"),
			row.Reference,
		} {
			dataRow.AddCell().Value = value
		}
	}

	for _, sheet := range []*xlsx.Sheet{salesSheet, ledgerSheet} {
		for i := 1; i <= 15; i++ {
			sheet.SetColWidth(i, i, 18)
		}
	}

	var buffer bytes.Buffer
	if err := file.Write(&buffer); err != nil {
		return nil, fmt.Errorf("failed to write Excel file to buffer: %w", err)
	}

	return buffer.Bytes(), nil
}

func (h *ExportHandler) addHeaderRow(sheet *xlsx.Sheet, headers []string) {
	headerRow := sheet.AddRow()
	for _, header := range headers {
		cell := headerRow.AddCell()
		cell.Value = header
		cell.GetStyle().Font.Bold = true
		cell.GetStyle().Fill.PatternType = "solid"
		cell.GetStyle().Fill.FgColor = "CCCCCC"
	}
}

func (h *ExportHandler) rowToJSONMap(row *SaleExportRow) map[string]any {
	return map[string]any{
		"sale_id":        row.SaleID,
		"sale_date":      row.SaleDate,
		"customer_name":  row.CustomerName,
		"payment_method": row.PaymentMethod,
		"is_paid":        row.IsPaid,
		"check_bounced":  row.CheckBounced,
		"product_code":   row.ProductCode,
		"product_name":   row.ProductName,
		"quantity":       row.Quantity,
		"unit_price":     row.UnitPrice,
		"unit_cost":      row.UnitCost,
		"discount":       row.Discount,
		"line_total":     row.LineTotal,
		"batch_id":       row.BatchID,
		"batch_date":     row.BatchDate,
	}
}

func (h *ExportHandler) yesNo(value bool) string {
	if value {
		return "Yes"
	}
	return "No"
}

func (h *ExportHandler) getCacheKeyFromParams(params *ExportParams) string {
	key := fmt.Sprintf("unpaid_%t", params.UnpaidOnly)
	if params.DateFrom != nil {
		key += fmt.Sprintf("_from_%s", params.DateFrom.Format("20060102"))
	}
	if params.DateTo != nil {
		key += fmt.Sprintf("_to_%s", params.DateTo.Format("20060102"))
	}
	key += "_" + strings.ToLower(params.Format)
	return key
}
