package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v3"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/internal/core/services"
)

// The seeder loads an opening ledger from an Excel workbook: suppliers,
// customers, products, then the historical stock receipts that become the
// FIFO batches everything else draws from. Receipts go through the stock
// service in backfill mode so past occurred_at dates are accepted, and the
// counters and per-batch remaining quantities come out consistent because
// the same code path the API uses writes them.
//
// Expected sheets (first row is a header and is skipped):
//
//	Suppliers: name, email, phone
//	Customers: name, email, phone, credit_limit
//	Products:  code, name, description, unit_price, low_stock_threshold
//	Receipts:  product_code, supplier_name, quantity, unit_cost, occurred_at, reference
//
// Applied receipt references are tracked in a state file so re-running the
// seeder against the same workbook does not double-count inventory.

// SeedState tracks which receipt references have already been applied.
type SeedState struct {
	ProcessedRefs map[string]bool `json:"processed_refs"`
	LastRun       time.Time       `json:"last_run"`
}

func loadState(path string) (*SeedState, error) {
	state := &SeedState{ProcessedRefs: make(map[string]bool)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.ProcessedRefs == nil {
		state.ProcessedRefs = make(map[string]bool)
	}
	return state, nil
}

func saveState(path string, state *SeedState) error {
	state.LastRun = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// supplierRow, customerRow, productRow and receiptRow mirror the workbook
// columns before they are turned into domain entities.
type supplierRow struct {
	Name  string
	Email string
	Phone string
}

type customerRow struct {
	Name        string
	Email       string
	Phone       string
	CreditLimit decimal.Decimal
}

type productRow struct {
	Code              string
	Name              string
	Description       string
	UnitPrice         decimal.Decimal
	LowStockThreshold int
}

type receiptRow struct {
	ProductCode  string
	SupplierName string
	Quantity     int
	UnitCost     decimal.Decimal
	OccurredAt   time.Time
	Reference    string
}

// Workbook is the parsed opening ledger.
type Workbook struct {
	Suppliers []supplierRow
	Customers []customerRow
	Products  []productRow
	Receipts  []receiptRow
}

// Loader reads the workbook sheets into row structs.
type Loader struct {
	logger *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: logger.With(slog.String("component", "loader"))}
}

// Load parses all recognized sheets from the workbook file.
func (l *Loader) Load(path string) (*Workbook, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	wb := &Workbook{}
	for _, sheet := range file.Sheets {
		switch strings.ToLower(strings.TrimSpace(sheet.Name)) {
		case "suppliers":
			wb.Suppliers, err = l.loadSuppliers(sheet)
		case "customers":
			wb.Customers, err = l.loadCustomers(sheet)
		case "products":
			wb.Products, err = l.loadProducts(sheet)
		case "receipts":
			wb.Receipts, err = l.loadReceipts(sheet)
		default:
			l.logger.Warn("skipping unrecognized sheet", slog.String("sheet", sheet.Name))
		}
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet.Name, err)
		}
	}

	l.logger.Info("workbook loaded",
		slog.Int("suppliers", len(wb.Suppliers)),
		slog.Int("customers", len(wb.Customers)),
		slog.Int("products", len(wb.Products)),
		slog.Int("receipts", len(wb.Receipts)),
	)
	return wb, nil
}

// forEachDataRow walks a sheet skipping the header row and blank rows, handing
// the callback a cell accessor that never returns an error.
func forEachDataRow(sheet *xlsx.Sheet, fn func(rowIdx int, cell func(i int) string) error) error {
	rowIdx := 0
	return sheet.ForEachRow(func(r *xlsx.Row) error {
		idx := rowIdx
		rowIdx++
		if idx == 0 {
			return nil
		}

		cell := func(i int) string {
			c := r.GetCell(i)
			if c == nil {
				return ""
			}
			if s, err := c.FormattedValue(); err == nil {
				return strings.TrimSpace(s)
			}
			return strings.TrimSpace(c.Value)
		}

		if cell(0) == "" {
			return nil
		}
		return fn(idx, cell)
	})
}

func (l *Loader) loadSuppliers(sheet *xlsx.Sheet) ([]supplierRow, error) {
	var rows []supplierRow
	err := forEachDataRow(sheet, func(_ int, cell func(i int) string) error {
		rows = append(rows, supplierRow{
			Name:  cell(0),
			Email: cell(1),
			Phone: cell(2),
		})
		return nil
	})
	return rows, err
}

func (l *Loader) loadCustomers(sheet *xlsx.Sheet) ([]customerRow, error) {
	var rows []customerRow
	err := forEachDataRow(sheet, func(rowIdx int, cell func(i int) string) error {
		limit := decimal.Zero
		if raw := cell(3); raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("row %d: bad credit_limit %q: %w", rowIdx+1, raw, err)
			}
			limit = parsed
		}
		rows = append(rows, customerRow{
			Name:        cell(0),
			Email:       cell(1),
			Phone:       cell(2),
			CreditLimit: limit,
		})
		return nil
	})
	return rows, err
}

func (l *Loader) loadProducts(sheet *xlsx.Sheet) ([]productRow, error) {
	var rows []productRow
	err := forEachDataRow(sheet, func(rowIdx int, cell func(i int) string) error {
		price, err := decimal.NewFromString(cell(3))
		if err != nil {
			return fmt.Errorf("row %d: bad unit_price %q: %w", rowIdx+1, cell(3), err)
		}
		threshold := 0
		if raw := cell(4); raw != "" {
			threshold, err = strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("row %d: bad low_stock_threshold %q: %w", rowIdx+1, raw, err)
			}
		}
		rows = append(rows, productRow{
			Code:              strings.ToUpper(cell(0)),
			Name:              cell(1),
			Description:       cell(2),
			UnitPrice:         price,
			LowStockThreshold: threshold,
		})
		return nil
	})
	return rows, err
}

// receiptDateFormats lists the occurred_at layouts accepted in the workbook,
// tried in order.
var receiptDateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/06",
}

func parseReceiptDate(raw string) (time.Time, error) {
	for _, layout := range receiptDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	// Excel sometimes hands back the raw serial number.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		return xlsx.TimeFromExcelTime(serial, false), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func (l *Loader) loadReceipts(sheet *xlsx.Sheet) ([]receiptRow, error) {
	var rows []receiptRow
	err := forEachDataRow(sheet, func(rowIdx int, cell func(i int) string) error {
		quantity, err := strconv.Atoi(cell(2))
		if err != nil {
			return fmt.Errorf("row %d: bad quantity %q: %w", rowIdx+1, cell(2), err)
		}
		unitCost, err := decimal.NewFromString(cell(3))
		if err != nil {
			return fmt.Errorf("row %d: bad unit_cost %q: %w", rowIdx+1, cell(3), err)
		}
		occurredAt, err := parseReceiptDate(cell(4))
		if err != nil {
			return fmt.Errorf("row %d: %w", rowIdx+1, err)
		}
		rows = append(rows, receiptRow{
			ProductCode:  strings.ToUpper(cell(0)),
			SupplierName: cell(1),
			Quantity:     quantity,
			UnitCost:     unitCost,
			OccurredAt:   occurredAt,
			Reference:    cell(5),
		})
		return nil
	})
	return rows, err
}

// Seeder drives the import: master data straight through the repositories,
// receipts through the stock service in backfill mode.
type Seeder struct {
	suppliers ports.SupplierRepository
	customers ports.CustomerRepository
	products  ports.ProductRepository
	stock     ports.StockService
	logger    *slog.Logger
	dryRun    bool

	supplierIDs map[string]uuid.UUID
	productIDs  map[string]uuid.UUID
}

func NewSeeder(
	suppliers ports.SupplierRepository,
	customers ports.CustomerRepository,
	products ports.ProductRepository,
	stock ports.StockService,
	logger *slog.Logger,
	dryRun bool,
) *Seeder {
	return &Seeder{
		suppliers:   suppliers,
		customers:   customers,
		products:    products,
		stock:       stock,
		logger:      logger.With(slog.String("component", "seeder")),
		dryRun:      dryRun,
		supplierIDs: make(map[string]uuid.UUID),
		productIDs:  make(map[string]uuid.UUID),
	}
}

func (s *Seeder) seedSuppliers(ctx context.Context, rows []supplierRow) (int, error) {
	created := 0
	for _, row := range rows {
		supplier := domain.NewSupplier(row.Name)
		supplier.Email = row.Email
		supplier.Phone = row.Phone
		if err := supplier.Validate(); err != nil {
			return created, fmt.Errorf("supplier %q: %w", row.Name, err)
		}
		supplier.PrepareForStorage()

		s.supplierIDs[strings.ToLower(supplier.Name)] = supplier.ID
		if s.dryRun {
			continue
		}
		if err := s.suppliers.Save(ctx, supplier); err != nil {
			return created, fmt.Errorf("supplier %q: %w", row.Name, err)
		}
		created++
	}
	return created, nil
}

func (s *Seeder) seedCustomers(ctx context.Context, rows []customerRow) (int, error) {
	created := 0
	for _, row := range rows {
		customer := domain.NewCustomer(row.Name, row.CreditLimit)
		customer.Email = row.Email
		customer.Phone = row.Phone
		if err := customer.Validate(); err != nil {
			return created, fmt.Errorf("customer %q: %w", row.Name, err)
		}
		customer.PrepareForStorage()

		if s.dryRun {
			continue
		}
		if err := s.customers.Save(ctx, customer); err != nil {
			return created, fmt.Errorf("customer %q: %w", row.Name, err)
		}
		created++
	}
	return created, nil
}

func (s *Seeder) seedProducts(ctx context.Context, rows []productRow) (int, int, error) {
	created, existing := 0, 0
	for _, row := range rows {
		// Re-runs against a populated schema map codes to the existing rows
		// instead of failing on the unique constraint.
		if found, err := s.products.FindByCode(ctx, row.Code); err != nil {
			return created, existing, fmt.Errorf("product %q: %w", row.Code, err)
		} else if found != nil {
			s.productIDs[row.Code] = found.ID
			existing++
			continue
		}

		product := domain.NewProduct(row.Code, row.Name, row.UnitPrice)
		product.Description = row.Description
		product.LowStockThreshold = row.LowStockThreshold
		if err := product.Validate(); err != nil {
			return created, existing, fmt.Errorf("product %q: %w", row.Code, err)
		}
		product.PrepareForStorage()

		s.productIDs[product.Code] = product.ID
		if s.dryRun {
			continue
		}
		if err := s.products.Save(ctx, product); err != nil {
			return created, existing, fmt.Errorf("product %q: %w", row.Code, err)
		}
		created++
	}
	return created, existing, nil
}

// receiptKey identifies a receipt in the state file. References are preferred;
// rows without one fall back to their content.
func receiptKey(row receiptRow) string {
	if row.Reference != "" {
		return row.Reference
	}
	return fmt.Sprintf("%s|%s|%d|%s",
		row.ProductCode, row.OccurredAt.Format("2006-01-02"), row.Quantity, row.UnitCost.String())
}

func (s *Seeder) seedReceipts(ctx context.Context, rows []receiptRow, state *SeedState, force bool) (int, int, error) {
	applied, skipped := 0, 0
	for i, row := range rows {
		key := receiptKey(row)
		if state.ProcessedRefs[key] && !force {
			skipped++
			continue
		}

		fmt.Printf("PROGRESS: Receipt %d/%d: %s x%d @ %s\n",
			i+1, len(rows), row.ProductCode, row.Quantity, row.UnitCost.StringFixed(2))

		productID, ok := s.productIDs[row.ProductCode]
		if !ok {
			return applied, skipped, fmt.Errorf("receipt %q: unknown product code %q", key, row.ProductCode)
		}
		supplierID, ok := s.supplierIDs[strings.ToLower(row.SupplierName)]
		if !ok {
			return applied, skipped, fmt.Errorf("receipt %q: unknown supplier %q", key, row.SupplierName)
		}

		if s.dryRun {
			applied++
			continue
		}

		occurredAt := row.OccurredAt
		_, err := s.stock.RecordMovement(ctx, ports.MovementInput{
			ProductID:    productID,
			MovementType: string(domain.MovementIn),
			Quantity:     row.Quantity,
			UnitCost:     row.UnitCost,
			SupplierID:   &supplierID,
			Reference:    row.Reference,
			OccurredAt:   &occurredAt,
		}, domain.ModeBackfill)
		if err != nil {
			return applied, skipped, fmt.Errorf("receipt %q: %w", key, err)
		}

		state.ProcessedRefs[key] = true
		applied++
	}
	return applied, skipped, nil
}

func main() {
	var (
		workbookFile = flag.String("workbook", "./opening_ledger.xlsx", "Excel workbook with the opening ledger")
		stateFile    = flag.String("state", "./.seed_state.json", "State file for tracking applied receipts")
		logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		dryRun       = flag.Bool("dry-run", false, "Preview changes without modifying database")
		force        = flag.Bool("force", false, "Reapply receipts already recorded in the state file")
	)
	flag.Parse()

	var level slog.Level
	switch strings.ToLower(*logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()

	dbConfig := db.DefaultConfig()
	dbConfig.Host = getEnv("DB_HOST", dbConfig.Host)
	dbConfig.Port = getEnv("DB_PORT", dbConfig.Port)
	dbConfig.User = getEnv("DB_USER", "storeflow")
	dbConfig.Password = getEnv("DB_PASSWORD", "storeflow_dev_2026")
	dbConfig.Database = getEnv("DB_NAME", "storeflow")
	dbConfig.MaxConnections = 5
	dbConfig.MinConnections = 1

	database, err := db.NewDatabase(ctx, dbConfig, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	supplierRepo := db.NewSupplierRepository(database, logger)
	customerRepo := db.NewCustomerRepository(database, logger)
	productRepo := db.NewProductRepository(database, logger)
	movementRepo := db.NewMovementRepository(database, logger)
	stockService := services.NewStockService(database, movementRepo, productRepo, supplierRepo, nil, logger)

	state, err := loadState(*stateFile)
	if err != nil {
		logger.Error("failed to load state", slog.Any("error", err))
		os.Exit(1)
	}

	workbook, err := NewLoader(logger).Load(*workbookFile)
	if err != nil {
		logger.Error("failed to load workbook", slog.Any("error", err))
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("DRY RUN: no database changes will be made")
	}

	seeder := NewSeeder(supplierRepo, customerRepo, productRepo, stockService, logger, *dryRun)

	start := time.Now()

	suppliersCreated, err := seeder.seedSuppliers(ctx, workbook.Suppliers)
	if err != nil {
		logger.Error("supplier seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	customersCreated, err := seeder.seedCustomers(ctx, workbook.Customers)
	if err != nil {
		logger.Error("customer seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	productsCreated, productsExisting, err := seeder.seedProducts(ctx, workbook.Products)
	if err != nil {
		logger.Error("product seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	receiptsApplied, receiptsSkipped, err := seeder.seedReceipts(ctx, workbook.Receipts, state, *force)
	if err != nil {
		logger.Error("receipt seeding failed", slog.Any("error", err))
		// Receipts already applied stay in the state file so a rerun picks
		// up where this one stopped.
		if !*dryRun {
			if saveErr := saveState(*stateFile, state); saveErr != nil {
				logger.Error("failed to save state", slog.Any("error", saveErr))
			}
		}
		os.Exit(1)
	}

	if !*dryRun {
		if err := saveState(*stateFile, state); err != nil {
			logger.Error("failed to save state", slog.Any("error", err))
			os.Exit(1)
		}
	}

	fmt.Println("\n=== SEED SUMMARY ===")
	fmt.Printf("Suppliers Created: %d\n", suppliersCreated)
	fmt.Printf("Customers Created: %d\n", customersCreated)
	fmt.Printf("Products Created: %d (%d already present)\n", productsCreated, productsExisting)
	fmt.Printf("Receipts Applied: %d\n", receiptsApplied)
	fmt.Printf("Receipts Skipped: %d\n", receiptsSkipped)
	fmt.Printf("Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	if *dryRun {
		fmt.Println("\nDry run complete; nothing was written.")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
