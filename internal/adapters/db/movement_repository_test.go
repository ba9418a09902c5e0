package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/test/helpers"
)

func TestMovementRepository_Save_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewMovementRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()

	product := helpers.CreateTestProduct()
	supplier := helpers.CreateTestSupplier()
	helpers.InsertProduct(t, testDB.PgxPool, product)
	helpers.InsertSupplier(t, testDB.PgxPool, supplier)

	batch := helpers.CreateTestBatch(product.ID, supplier.ID, 10, 2.00, time.Now(), func(m *domain.StockMovement) {
		m.Reference = "PO-2026-001"
	})
	err := repo.Save(ctx, batch)
	require.NoError(t, err)

	saved, err := repo.FindByID(ctx, batch.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, product.ID, saved.ProductID)
	assert.Equal(t, domain.MovementIn, saved.MovementType)
	assert.Equal(t, 10, saved.Quantity)
	assert.Equal(t, 10, saved.RemainingQuantity)
	assert.Equal(t, "PO-2026-001", saved.Reference)
	require.NotNil(t, saved.SupplierID)
	assert.Equal(t, supplier.ID, *saved.SupplierID)
	helpers.AssertDecimalEqual(t, batch.UnitCost, saved.UnitCost)

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMovementRepository_AvailableBatchesForUpdate_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewMovementRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()

	product := helpers.CreateTestProduct()
	supplier := helpers.CreateTestSupplier()
	helpers.InsertProduct(t, testDB.PgxPool, product)
	helpers.InsertSupplier(t, testDB.PgxPool, supplier)

	now := time.Now()
	// Inserted newest first; the query must return them oldest first anyway.
	newest := helpers.CreateTestBatch(product.ID, supplier.ID, 5, 3.00, now.Add(-24*time.Hour))
	oldest := helpers.CreateTestBatch(product.ID, supplier.ID, 10, 2.00, now.Add(-168*time.Hour))
	depleted := helpers.CreateTestBatch(product.ID, supplier.ID, 8, 1.50, now.Add(-240*time.Hour), func(m *domain.StockMovement) {
		m.RemainingQuantity = 0
	})
	egress := helpers.CreateTestBatch(product.ID, supplier.ID, 3, 2.00, now.Add(-12*time.Hour), func(m *domain.StockMovement) {
		m.MovementType = domain.MovementOut
		m.RemainingQuantity = 0
		m.SupplierID = nil
	})
	for _, m := range []*domain.StockMovement{newest, oldest, depleted, egress} {
		require.NoError(t, repo.Save(ctx, m))
	}

	batches, err := repo.AvailableBatchesForUpdate(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2, "depleted and OUT rows must be excluded")
	assert.Equal(t, oldest.ID, batches[0].ID)
	assert.Equal(t, newest.ID, batches[1].ID)

	none, err := repo.AvailableBatchesForUpdate(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMovementRepository_TotalAvailableMany_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewMovementRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()

	stocked := helpers.CreateTestProduct()
	empty := helpers.CreateTestProduct(func(p *domain.Product) { p.Code = "WID-2" })
	supplier := helpers.CreateTestSupplier()
	helpers.InsertProduct(t, testDB.PgxPool, stocked)
	helpers.InsertProduct(t, testDB.PgxPool, empty)
	helpers.InsertSupplier(t, testDB.PgxPool, supplier)

	require.NoError(t, repo.Save(ctx, helpers.CreateTestBatch(stocked.ID, supplier.ID, 10, 2.00, time.Now().Add(-time.Hour))))
	require.NoError(t, repo.Save(ctx, helpers.CreateTestBatch(stocked.ID, supplier.ID, 5, 3.00, time.Now())))

	totals, err := repo.TotalAvailableMany(ctx, []uuid.UUID{stocked.ID, empty.ID})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, 15, totals[stocked.ID])
	assert.Equal(t, 0, totals[empty.ID], "products with no batches report zero, not absence")

	single, err := repo.TotalAvailable(ctx, stocked.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, single)
}

func TestMovementRepository_AdjustRemaining_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewMovementRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()

	product := helpers.CreateTestProduct()
	supplier := helpers.CreateTestSupplier()
	helpers.InsertProduct(t, testDB.PgxPool, product)
	helpers.InsertSupplier(t, testDB.PgxPool, supplier)

	batch := helpers.CreateTestBatch(product.ID, supplier.ID, 10, 2.00, time.Now())
	require.NoError(t, repo.Save(ctx, batch))

	remaining, err := repo.AdjustRemaining(ctx, batch.ID, -4)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)

	remaining, err = repo.AdjustRemaining(ctx, batch.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	t.Run("underflow_rejected", func(t *testing.T) {
		_, err := repo.AdjustRemaining(ctx, batch.ID, -11)
		var consistencyErr *domain.InternalConsistencyError
		require.ErrorAs(t, err, &consistencyErr)
	})

	t.Run("restore_past_original_quantity_rejected", func(t *testing.T) {
		_, err := repo.AdjustRemaining(ctx, batch.ID, 1)
		var consistencyErr *domain.InternalConsistencyError
		require.ErrorAs(t, err, &consistencyErr)
	})

	t.Run("unknown_batch_rejected", func(t *testing.T) {
		_, err := repo.AdjustRemaining(ctx, uuid.New(), -1)
		var consistencyErr *domain.InternalConsistencyError
		require.ErrorAs(t, err, &consistencyErr)
	})
}

func TestMovementRepository_List_Unit(t *testing.T) {
	testDB := helpers.SetupTestDB(t)
	defer testDB.Database.Close()

	repo := db.NewMovementRepository(testDB.Database, helpers.TestLogger())
	ctx := context.Background()

	product := helpers.CreateTestProduct()
	other := helpers.CreateTestProduct(func(p *domain.Product) { p.Code = "WID-2" })
	supplier := helpers.CreateTestSupplier()
	helpers.InsertProduct(t, testDB.PgxPool, product)
	helpers.InsertProduct(t, testDB.PgxPool, other)
	helpers.InsertSupplier(t, testDB.PgxPool, supplier)

	now := time.Now()
	open := helpers.CreateTestBatch(product.ID, supplier.ID, 10, 2.00, now.Add(-48*time.Hour))
	drained := helpers.CreateTestBatch(product.ID, supplier.ID, 5, 3.00, now.Add(-24*time.Hour), func(m *domain.StockMovement) {
		m.RemainingQuantity = 0
	})
	elsewhere := helpers.CreateTestBatch(other.ID, supplier.ID, 7, 1.00, now)
	for _, m := range []*domain.StockMovement{open, drained, elsewhere} {
		require.NoError(t, repo.Save(ctx, m))
	}

	t.Run("filters_by_product", func(t *testing.T) {
		movements, total, err := repo.List(ctx, ports.MovementListParams{
			ProductID: &product.ID,
			Page:      1,
			PageSize:  50,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, movements, 2)
	})

	t.Run("available_only_drops_drained_batches", func(t *testing.T) {
		movements, total, err := repo.List(ctx, ports.MovementListParams{
			ProductID:     &product.ID,
			AvailableOnly: true,
			Page:          1,
			PageSize:      50,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, movements, 1)
		assert.Equal(t, open.ID, movements[0].ID)
	})

	t.Run("ascending_order_walks_oldest_first", func(t *testing.T) {
		movements, _, err := repo.List(ctx, ports.MovementListParams{
			ProductID: &product.ID,
			SortOrder: "asc",
			Page:      1,
			PageSize:  50,
		})
		require.NoError(t, err)
		require.Len(t, movements, 2)
		assert.Equal(t, open.ID, movements[0].ID)
		assert.Equal(t, drained.ID, movements[1].ID)
	})
}
