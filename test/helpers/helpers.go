// test/helpers/helpers.go
package helpers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/core/domain"
)

// TestDB is a throwaway PostgreSQL instance backed by a Docker container.
type TestDB struct {
	PgxPool  *pgxpool.Pool
	Database *db.Database
	Resource *dockertest.Resource
	Pool     *dockertest.Pool
	Config   *db.Config
}

// TestRedis pairs a miniredis server with a client pointed at it.
type TestRedis struct {
	Client *redis.Client
	Server *miniredis.Miniredis
}

// TestLogger is quiet by default; go test -v turns on debug output.
func TestLogger() *slog.Logger {
	level := slog.LevelError
	if testing.Verbose() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// SetupTestDB starts a PostgreSQL container, waits for it to accept
// connections, and applies all migrations. The container is purged when
// the test finishes.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "docker is required for integration tests")

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=test_storeflow",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "could not start PostgreSQL container")

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("could not purge postgres container: %s", err)
		}
	})

	dbConfig := &db.Config{
		Host:               "localhost",
		Port:               resource.GetPort("5432/tcp"),
		User:               "test",
		Password:           "test",
		Database:           "test_storeflow",
		SSLMode:            "disable",
		MaxConnections:     5,
		MinConnections:     1,
		MaxConnLifetime:    time.Hour,
		MaxConnIdleTime:    time.Minute * 30,
		HealthCheckPeriod:  time.Minute,
		ConnectTimeout:     time.Second * 10,
		StatementCacheMode: "describe",
		EnableQueryLogging: testing.Verbose(),
	}

	// The container reports ready before postgres accepts connections,
	// so connect under dockertest's retry loop.
	var database *db.Database
	err = pool.Retry(func() error {
		ctx := context.Background()
		var err error
		database, err = db.NewDatabase(ctx, dbConfig, TestLogger())
		if err != nil {
			return err
		}
		return database.Ping(ctx)
	})
	require.NoError(t, err, "could not connect to PostgreSQL")

	ctx := context.Background()
	migrationConfig := &db.MigrationConfig{
		DatabaseURL: fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
			dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port,
			dbConfig.Database, dbConfig.SSLMode),
		SourcePath: "../../migrations",
		TableName:  "schema_migrations",
		SchemaName: "public",
	}

	err = db.RunMigrationsWithRetry(ctx, migrationConfig, TestLogger(), 3)
	require.NoError(t, err, "could not run migrations")

	return &TestDB{
		PgxPool:  database.Pool(),
		Database: database,
		Resource: resource,
		Pool:     pool,
		Config:   dbConfig,
	}
}

// SetupTestRedis starts an in-process miniredis and a client wired to it.
func SetupTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		client.Close()
	})

	return &TestRedis{Client: client, Server: mr}
}

// CreateTestProduct creates a test product
func CreateTestProduct(overrides ...func(*domain.Product)) *domain.Product {
	now := time.Now()
	product := &domain.Product{
		ID:                uuid.New(),
		Code:              "WID-1",
		Name:              "Test Widget",
		Description:       "Standard test widget",
		FixedPrice:        decimal.NewFromFloat(5.00),
		DiscountPct:       decimal.Zero,
		CurrentStock:      0,
		LowStockThreshold: 5,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	for _, override := range overrides {
		override(product)
	}

	return product
}

// CreateTestSupplier creates a test supplier
func CreateTestSupplier(overrides ...func(*domain.Supplier)) *domain.Supplier {
	now := time.Now()
	supplier := &domain.Supplier{
		ID:        uuid.New(),
		Name:      "Acme Wholesale",
		Email:     "orders@acme.test",
		Phone:     "555-0100",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(supplier)
	}

	return supplier
}

// CreateTestCustomer creates a test customer
func CreateTestCustomer(overrides ...func(*domain.Customer)) *domain.Customer {
	now := time.Now()
	customer := &domain.Customer{
		ID:                 uuid.New(),
		Name:               "Jane Doe",
		Email:              "jane@example.test",
		Phone:              "555-0101",
		CreditLimit:        decimal.NewFromInt(1000),
		OutstandingBalance: decimal.Zero,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	for _, override := range overrides {
		override(customer)
	}

	return customer
}

// CreateTestBatch creates an IN movement with the full quantity remaining.
func CreateTestBatch(productID, supplierID uuid.UUID, quantity int, unitCost float64, occurredAt time.Time, overrides ...func(*domain.StockMovement)) *domain.StockMovement {
	batch := &domain.StockMovement{
		ID:                uuid.New(),
		ProductID:         productID,
		MovementType:      domain.MovementIn,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		UnitCost:          decimal.NewFromFloat(unitCost),
		SupplierID:        &supplierID,
		OccurredAt:        occurredAt,
		CreatedAt:         occurredAt,
	}

	for _, override := range overrides {
		override(batch)
	}

	return batch
}

// CreateTestSale creates a paid cash sale header without lines.
func CreateTestSale(customerID uuid.UUID, overrides ...func(*domain.Sale)) *domain.Sale {
	now := time.Now()
	sale := &domain.Sale{
		ID:            uuid.New(),
		CustomerID:    customerID,
		SaleDate:      now,
		TotalAmount:   decimal.NewFromFloat(25.00),
		PaymentMethod: domain.PaymentCash,
		IsPaid:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, override := range overrides {
		override(sale)
	}

	return sale
}

// CreateTestCheckSale creates an unpaid credit-check sale header.
func CreateTestCheckSale(customerID uuid.UUID, checkDate time.Time, overrides ...func(*domain.Sale)) *domain.Sale {
	sale := CreateTestSale(customerID, func(s *domain.Sale) {
		s.PaymentMethod = domain.PaymentCreditCheck
		s.IsPaid = false
		s.Check = &domain.CheckDetails{
			CheckNumber: "CHK-1001",
			BankName:    "First Test Bank",
			CheckDate:   checkDate,
		}
	})

	for _, override := range overrides {
		override(sale)
	}

	return sale
}

// AssertDecimalEqual compares two decimals with a readable failure message.
func AssertDecimalEqual(t *testing.T, expected, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.True(t, expected.Equal(actual),
		append([]any{fmt.Sprintf("expected %s, got %s", expected, actual)}, msgAndArgs...)...)
}

// TruncateAllTables empties every table, children before parents.
func TruncateAllTables(t *testing.T, db *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	tables := []string{
		"sale_lines",
		"sales",
		"stock_movements",
		"customers",
		"suppliers",
		"products",
	}

	for _, table := range tables {
		_, err := db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(t, err, "failed to truncate table %s", table)
	}
}

// InsertProduct writes a product row directly, bypassing the repository.
func InsertProduct(t *testing.T, db *pgxpool.Pool, p *domain.Product) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO products (
			id, code, name, description, fixed_price, discount_pct,
			current_stock, low_stock_threshold, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Code, p.Name, p.Description, p.FixedPrice, p.DiscountPct,
		p.CurrentStock, p.LowStockThreshold, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	require.NoError(t, err, "failed to insert product")
}

// InsertSupplier writes a supplier row directly.
func InsertSupplier(t *testing.T, db *pgxpool.Pool, s *domain.Supplier) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO suppliers (id, name, email, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Name, s.Email, s.Phone, s.IsActive, s.CreatedAt, s.UpdatedAt,
	)
	require.NoError(t, err, "failed to insert supplier")
}

// InsertCustomer writes a customer row directly.
func InsertCustomer(t *testing.T, db *pgxpool.Pool, c *domain.Customer) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO customers (
			id, name, email, phone, credit_limit, outstanding_balance,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.Email, c.Phone, c.CreditLimit, c.OutstandingBalance,
		c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	require.NoError(t, err, "failed to insert customer")
}

// InsertBatch writes a stock movement row directly. The product's cached
// counter is bumped to keep the ledger and counter consistent.
func InsertBatch(t *testing.T, db *pgxpool.Pool, m *domain.StockMovement) {
	t.Helper()

	ctx := context.Background()
	_, err := db.Exec(ctx, `
		INSERT INTO stock_movements (
			id, product_id, movement_type, quantity, remaining_quantity,
			unit_cost, supplier_id, reference, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.ProductID, m.MovementType, m.Quantity, m.RemainingQuantity,
		m.UnitCost, m.SupplierID, m.Reference, m.OccurredAt, m.CreatedAt,
	)
	require.NoError(t, err, "failed to insert stock movement")

	if m.MovementType == domain.MovementIn {
		_, err = db.Exec(ctx,
			`UPDATE products SET current_stock = current_stock + $2 WHERE id = $1`,
			m.ProductID, m.Quantity,
		)
		require.NoError(t, err, "failed to bump product stock counter")
	}
}
