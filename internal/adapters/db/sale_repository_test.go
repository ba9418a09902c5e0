package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/test/helpers"
)

// saleFixtures seeds the rows a sale header and its lines depend on.
type saleFixtures struct {
	product  *domain.Product
	supplier *domain.Supplier
	customer *domain.Customer
	batch    *domain.StockMovement
}

func seedSaleFixtures(t *testing.T, testDB *helpers.TestDB) saleFixtures {
	t.Helper()

	f := saleFixtures{
		product:  helpers.CreateTestProduct(),
		supplier: helpers.CreateTestSupplier(),
		customer: helpers.CreateTestCustomer(),
	}
	helpers.InsertProduct(t, testDB.PgxPool, f.product)
	helpers.InsertSupplier(t, testDB.PgxPool, f.supplier)
	helpers.InsertCustomer(t, testDB.PgxPool, f.customer)

	f.batch = helpers.CreateTestBatch(f.product.ID, f.supplier.ID, 10, 2.00, time.Now().Add(-48*time.Hour))
	helpers.InsertBatch(t, testDB.PgxPool, f.batch)
	return f
}

func TestSaleRepository_SaveHeader_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewSaleRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()
	f := seedSaleFixtures(t, testDB)

	t.Run("cash_sale_round_trips_without_check_details", func(t *testing.T) {
		sale := helpers.CreateTestSale(f.customer.ID)
		require.NoError(t, repo.SaveHeader(ctx, sale))

		saved, err := repo.FindByID(ctx, sale.ID)
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, f.customer.ID, saved.CustomerID)
		assert.Equal(t, domain.PaymentCash, saved.PaymentMethod)
		assert.True(t, saved.IsPaid)
		assert.Nil(t, saved.Check)
		helpers.AssertDecimalEqual(t, sale.TotalAmount, saved.TotalAmount)
	})

	t.Run("check_sale_round_trips_check_details", func(t *testing.T) {
		checkDate := time.Now().Add(14 * 24 * time.Hour)
		sale := helpers.CreateTestCheckSale(f.customer.ID, checkDate)
		require.NoError(t, repo.SaveHeader(ctx, sale))

		saved, err := repo.FindByID(ctx, sale.ID)
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.False(t, saved.IsPaid)
		require.NotNil(t, saved.Check)
		assert.Equal(t, "CHK-1001", saved.Check.CheckNumber)
		assert.Equal(t, "First Test Bank", saved.Check.BankName)
		assert.False(t, saved.Check.Bounced)
		assert.WithinDuration(t, checkDate, saved.Check.CheckDate, time.Second)
	})

	t.Run("unknown_sale_returns_nil", func(t *testing.T) {
		saved, err := repo.FindByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, saved)
	})
}

func TestSaleRepository_Lines_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewSaleRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()
	f := seedSaleFixtures(t, testDB)

	sale := helpers.CreateTestSale(f.customer.ID)
	require.NoError(t, repo.SaveHeader(ctx, sale))

	first, err := domain.NewSaleLine(sale.ID, f.batch, 4, decimal.NewFromFloat(5.00), decimal.Zero)
	require.NoError(t, err)
	second, err := domain.NewSaleLine(sale.ID, f.batch, 2, decimal.NewFromFloat(5.00), decimal.NewFromFloat(1.00))
	require.NoError(t, err)
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)

	require.NoError(t, repo.InsertLines(ctx, []domain.SaleLine{*first, *second}))

	lines, err := repo.FindLines(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, first.ID, lines[0].ID)
	assert.Equal(t, second.ID, lines[1].ID)
	assert.Equal(t, f.batch.ID, lines[0].BatchID)
	helpers.AssertDecimalEqual(t, f.batch.UnitCost, lines[0].BatchUnitCost)
	helpers.AssertDecimalEqual(t, decimal.NewFromFloat(20.00), lines[0].LineTotal)
	helpers.AssertDecimalEqual(t, decimal.NewFromFloat(9.00), lines[1].LineTotal)

	t.Run("delete_cascades_to_lines", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, sale.ID))

		lines, err := repo.FindLines(ctx, sale.ID)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})
}

func TestSaleRepository_UpdateStatus_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewSaleRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()
	f := seedSaleFixtures(t, testDB)

	sale := helpers.CreateTestCheckSale(f.customer.ID, time.Now().Add(7*24*time.Hour))
	require.NoError(t, repo.SaveHeader(ctx, sale))

	require.NoError(t, sale.MarkBounced("returned by bank"))
	require.NoError(t, repo.UpdateStatus(ctx, sale))

	saved, err := repo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.Check)
	assert.True(t, saved.Check.Bounced)
	assert.Equal(t, "returned by bank", saved.Check.BouncedNotes)
	require.NotNil(t, saved.Check.BouncedAt)

	t.Run("unknown_sale_reports_not_found", func(t *testing.T) {
		ghost := helpers.CreateTestSale(f.customer.ID)
		err := repo.UpdateStatus(ctx, ghost)
		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
	})
}

func TestSaleRepository_List_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewSaleRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()
	f := seedSaleFixtures(t, testDB)

	other := helpers.CreateTestCustomer(func(c *domain.Customer) { c.Email = "other@example.test" })
	helpers.InsertCustomer(t, testDB.PgxPool, other)

	paid := helpers.CreateTestSale(f.customer.ID)
	unpaid := helpers.CreateTestCheckSale(f.customer.ID, time.Now().Add(7*24*time.Hour))
	elsewhere := helpers.CreateTestSale(other.ID)
	for _, s := range []*domain.Sale{paid, unpaid, elsewhere} {
		require.NoError(t, repo.SaveHeader(ctx, s))
	}

	t.Run("filters_by_customer", func(t *testing.T) {
		sales, total, err := repo.List(ctx, ports.SaleListParams{
			CustomerID: &f.customer.ID,
			Page:       1,
			PageSize:   50,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, sales, 2)
	})

	t.Run("unpaid_only", func(t *testing.T) {
		sales, total, err := repo.List(ctx, ports.SaleListParams{
			CustomerID: &f.customer.ID,
			UnpaidOnly: true,
			Page:       1,
			PageSize:   50,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, sales, 1)
		assert.Equal(t, unpaid.ID, sales[0].ID)
	})
}

func TestSaleRepository_ChecksDueBetween_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewSaleRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()
	f := seedSaleFixtures(t, testDB)

	now := time.Now()
	dueSoon := helpers.CreateTestCheckSale(f.customer.ID, now.Add(48*time.Hour))
	dueLater := helpers.CreateTestCheckSale(f.customer.ID, now.Add(30*24*time.Hour))
	bounced := helpers.CreateTestCheckSale(f.customer.ID, now.Add(24*time.Hour))
	settled := helpers.CreateTestCheckSale(f.customer.ID, now.Add(24*time.Hour))
	for _, s := range []*domain.Sale{dueSoon, dueLater, bounced, settled} {
		require.NoError(t, repo.SaveHeader(ctx, s))
	}
	require.NoError(t, bounced.MarkBounced("nsf"))
	require.NoError(t, repo.UpdateStatus(ctx, bounced))
	require.NoError(t, settled.MarkPaid())
	require.NoError(t, repo.UpdateStatus(ctx, settled))

	due, err := repo.ChecksDueBetween(ctx, now, now.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1, "bounced, paid, and out-of-window checks are excluded")
	assert.Equal(t, dueSoon.ID, due[0].ID)
}
