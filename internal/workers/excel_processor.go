// internal/workers/excel_processor.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"

	"github.com/emartell/storeflow-be/internal/adapters/storage"
	"github.com/emartell/storeflow-be/internal/core/ports"
)

// ExcelExportPayload is the payload for export:excel tasks.
type ExcelExportPayload struct {
	JobID    string     `json:"job_id"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Unpaid   bool       `json:"unpaid,omitempty"`
}

// ExcelProcessor builds sales workbooks in the background and parks them
// in object storage for later download.
type ExcelProcessor struct {
	db      ports.Database
	storage storage.StorageClient
	logger  *slog.Logger
}

// NewExcelProcessor creates a new Excel processor
func NewExcelProcessor(db ports.Database, storageClient storage.StorageClient, logger *slog.Logger) *ExcelProcessor {
	return &ExcelProcessor{
		db:      db,
		storage: storageClient,
		logger:  logger.With(slog.String("processor", "excel")),
	}
}

// GenerateExport builds the workbook for one export job and uploads it.
func (p *ExcelProcessor) GenerateExport(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	var payload ExcelExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	p.logger.InfoContext(ctx, "generating Excel export",
		slog.String("job_id", payload.JobID))

	file := xlsx.NewFile()

	saleCount, err := p.addSalesSheet(ctx, file, &payload)
	if err != nil {
		return fmt.Errorf("failed to build sales sheet: %w", err)
	}

	ledgerCount, err := p.addLedgerSheet(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to build ledger sheet: %w", err)
	}

	var buffer bytes.Buffer
	if err := file.Write(&buffer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	key := fmt.Sprintf("exports/%s/sales_%s.xlsx", payload.JobID, time.Now().Format("20060102_150405"))
	location, err := p.storage.Upload(ctx, key, &buffer,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err != nil {
		return fmt.Errorf("failed to upload workbook: %w", err)
	}

	p.logger.InfoContext(ctx, "Excel export completed",
		slog.String("job_id", payload.JobID),
		slog.String("location", location),
		slog.Int("sale_rows", saleCount),
		slog.Int("ledger_rows", ledgerCount),
		slog.Duration("elapsed", time.Since(start)))

	return nil
}

func (p *ExcelProcessor) addSalesSheet(ctx context.Context, file *xlsx.File, payload *ExcelExportPayload) (int, error) {
	sheet, err := file.AddSheet("Sales")
	if err != nil {
		return 0, err
	}

	headerRow := sheet.AddRow()
	for _, header := range []string{
		"Sale ID", "Date", "Customer", "Payment Method", "Paid",
		"Product Code", "Quantity", "Unit Price", "Unit Cost", "Discount", "Line Total",
	} {
		cell := headerRow.AddCell()
		cell.Value = header
		cell.GetStyle().Font.Bold = true
	}

	query := `
		SELECT s.id, s.sale_date, c.name, s.payment_method, s.is_paid,
		       p.code, sl.quantity, sl.unit_price, sl.batch_unit_cost, sl.discount, sl.line_total
		FROM sale_lines sl
		JOIN sales s ON s.id = sl.sale_id
		JOIN customers c ON c.id = s.customer_id
		JOIN products p ON p.id = sl.product_id
		WHERE 1=1
	`
	var args []any
	if payload.DateFrom != nil {
		args = append(args, *payload.DateFrom)
		query += fmt.Sprintf(" AND s.sale_date >= $%d", len(args))
	}
	if payload.DateTo != nil {
		args = append(args, *payload.DateTo)
		query += fmt.Sprintf(" AND s.sale_date <= $%d", len(args))
	}
	if payload.Unpaid {
		query += " AND s.is_paid = FALSE"
	}
	query += " ORDER BY s.sale_date DESC, sl.created_at ASC"

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id, customer, method, code          string
			saleDate                            time.Time
			isPaid                              bool
			quantity                            int
			unitPrice, unitCost, discount, line decimal.Decimal
		)
		if err := rows.Scan(&id, &saleDate, &customer, &method, &isPaid,
			&code, &quantity, &unitPrice, &unitCost, &discount, &line); err != nil {
			return 0, err
		}

		paid := "No"
		if isPaid {
			paid = "Yes"
		}

		dataRow := sheet.AddRow()
		for _, value := range []string{
			id, saleDate.Format("2006-01-02 15:04:05"), customer, method, paid,
			code, strconv.Itoa(quantity), unitPrice.StringFixed(2),
			unitCost.StringFixed(2), discount.StringFixed(2), line.StringFixed(2),
		} {
			dataRow.AddCell().Value = value
		}
		count++
	}

	return count, rows.Err()
}

func (p *ExcelProcessor) addLedgerSheet(ctx context.Context, file *xlsx.File) (int, error) {
	sheet, err := file.AddSheet("Stock Ledger")
	if err != nil {
		return 0, err
	}

	headerRow := sheet.AddRow()
	for _, header := range []string{
		"Product Code", "Received", "Remaining", "Unit Cost", "Received At", "Reference",
	} {
		cell := headerRow.AddCell()
		cell.Value = header
		cell.GetStyle().Font.Bold = true
	}

	query := `
		SELECT p.code, m.quantity, m.remaining_quantity, m.unit_cost, m.occurred_at, COALESCE(m.reference, '')
		FROM stock_movements m
		JOIN products p ON p.id = m.product_id
		WHERE m.movement_type = 'IN'
		ORDER BY p.code ASC, m.occurred_at ASC, m.id ASC
	`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			code, reference     string
			quantity, remaining int
			unitCost            decimal.Decimal
			occurredAt          time.Time
		)
		if err := rows.Scan(&code, &quantity, &remaining, &unitCost, &occurredAt, &reference); err != nil {
			return 0, err
		}

		dataRow := sheet.AddRow()
		for _, value := range []string{
			code, strconv.Itoa(quantity), strconv.Itoa(remaining),
			unitCost.StringFixed(2), occurredAt.Format("2006-01-02"), reference,
		} {
			dataRow.AddCell().Value = value
		}
		count++
	}

	return count, rows.Err()
}
