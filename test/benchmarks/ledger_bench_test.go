package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/internal/core/services"
	"github.com/emartell/storeflow-be/test/helpers"
)

func BenchmarkLedgerOperations(b *testing.B) {
	// Setup
	testDB := helpers.SetupTestDB(&testing.T{})
	defer testDB.Database.Close()

	logger := helpers.TestLogger()
	movementRepo := db.NewMovementRepository(testDB.Database, logger)
	productRepo := db.NewProductRepository(testDB.Database, logger)
	supplierRepo := db.NewSupplierRepository(testDB.Database, logger)
	saleRepo := db.NewSaleRepository(testDB.Database, logger)
	customerRepo := db.NewCustomerRepository(testDB.Database, logger)

	stockService := services.NewStockService(
		testDB.Database, movementRepo, productRepo, supplierRepo, nil, logger)
	saleService := services.NewSaleService(
		testDB.Database, saleRepo, movementRepo, productRepo, customerRepo, nil, logger)

	seeded := seedLedger(&testing.T{}, testDB, 20, 5)
	ctx := context.Background()

	b.Run("RecordReceipt", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			productID := seeded.ProductIDs[i%len(seeded.ProductIDs)]
			_, _ = stockService.RecordMovement(ctx, ports.MovementInput{
				ProductID:    productID,
				MovementType: "IN",
				Quantity:     100,
				UnitCost:     decimal.NewFromFloat(2.50),
				SupplierID:   &seeded.SupplierID,
				Reference:    fmt.Sprintf("BENCH-PO-%d", i),
			}, domain.ModeStrict)
		}
	})

	b.Run("TotalAvailable", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			productID := seeded.ProductIDs[i%len(seeded.ProductIDs)]
			_, _ = movementRepo.TotalAvailable(ctx, productID)
		}
	})

	b.Run("CreateSale", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			productID := seeded.ProductIDs[i%len(seeded.ProductIDs)]
			_, _ = saleService.CreateSale(ctx, ports.CreateSaleInput{
				CustomerID:    seeded.CustomerID,
				PaymentMethod: domain.PaymentCash,
				Items: []ports.SaleItemInput{{
					ProductID: productID,
					Quantity:  3,
					UnitPrice: decimal.NewFromFloat(5.00),
				}},
			})
		}
	})

	b.Run("ListMovements", func(b *testing.B) {
		params := ports.MovementListParams{
			Page:     1,
			PageSize: 50,
		}

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _, _ = movementRepo.List(ctx, params)
		}
	})

	b.Run("StockDetail", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			productID := seeded.ProductIDs[i%len(seeded.ProductIDs)]
			_, _ = stockService.StockDetail(ctx, productID)
		}
	})
}

func BenchmarkRequirementAggregation(b *testing.B) {
	productIDs := make([]uuid.UUID, 10)
	for i := range productIDs {
		productIDs[i] = uuid.New()
	}
	items := make([]ports.SaleItemInput, 50)
	for i := range items {
		items[i] = ports.SaleItemInput{
			ProductID: productIDs[i%len(productIDs)],
			Quantity:  2,
			UnitPrice: decimal.NewFromFloat(5.00),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = services.AggregateRequirements(items)
	}
}

func BenchmarkSaleValidation(b *testing.B) {
	customerID := uuid.New()
	checkDate := time.Now().Add(14 * 24 * time.Hour)

	b.Run("CashSale", func(b *testing.B) {
		sale := domain.NewSale(customerID, domain.PaymentCash, nil)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = sale.Validate(domain.ModeStrict)
		}
	})

	b.Run("CheckSale", func(b *testing.B) {
		sale := domain.NewSale(customerID, domain.PaymentCreditCheck, &domain.CheckDetails{
			CheckNumber: "CHK-1001",
			BankName:    "First Test Bank",
			CheckDate:   checkDate,
		})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = sale.Validate(domain.ModeStrict)
		}
	})
}

// Memory allocation benchmarks
func BenchmarkMemoryAllocation(b *testing.B) {
	b.Run("SaleLine", func(b *testing.B) {
		saleID := uuid.New()
		supplierID := uuid.New()
		batch := &domain.StockMovement{
			ID:                uuid.New(),
			ProductID:         uuid.New(),
			MovementType:      domain.MovementIn,
			Quantity:          100,
			RemainingQuantity: 100,
			UnitCost:          decimal.NewFromFloat(2.00),
			SupplierID:        &supplierID,
			OccurredAt:        time.Now(),
		}
		unitPrice := decimal.NewFromFloat(5.00)

		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_, _ = domain.NewSaleLine(saleID, batch, 3, unitPrice, decimal.Zero)
		}
	})

	b.Run("MovementListResult", func(b *testing.B) {
		supplierID := uuid.New()
		movements := make([]*domain.StockMovement, 100)
		for i := range movements {
			movements[i] = domain.NewStockReceipt(
				uuid.New(), 100, decimal.NewFromFloat(2.00), supplierID, time.Now())
		}

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = &ports.MovementListResult{
				Movements:  movements,
				Page:       1,
				PageSize:   50,
				TotalCount: 100,
				TotalPages: 2,
			}
		}
	})
}
