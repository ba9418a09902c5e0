// internal/core/services/validator_test.go
package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/internal/core/services"
	"github.com/emartell/storeflow-be/test/helpers"
	"github.com/emartell/storeflow-be/test/mocks"
)

func saleItem(productID uuid.UUID, qty int) ports.SaleItemInput {
	return ports.SaleItemInput{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.NewFromFloat(5.00),
		Discount:  decimal.Zero,
	}
}

func TestStockValidator_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("passes_when_all_products_covered", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		movements := mocks.NewMockMovementRepository(ctrl)
		products := mocks.NewMockProductRepository(ctrl)

		p1, p2 := uuid.New(), uuid.New()
		movements.EXPECT().
			TotalAvailableMany(gomock.Any(), []uuid.UUID{p1, p2}).
			Return(map[uuid.UUID]int{p1: 10, p2: 3}, nil)

		validator := services.NewStockValidator(movements, products, helpers.TestLogger())
		err := validator.Validate(ctx, []ports.SaleItemInput{saleItem(p1, 10), saleItem(p2, 3)})
		assert.NoError(t, err)
	})

	t.Run("collects_every_shortfall", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		movements := mocks.NewMockMovementRepository(ctrl)
		products := mocks.NewMockProductRepository(ctrl)

		p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
		movements.EXPECT().
			TotalAvailableMany(gomock.Any(), []uuid.UUID{p1, p2, p3}).
			Return(map[uuid.UUID]int{p1: 2, p2: 50, p3: 0}, nil)
		products.EXPECT().
			FindByID(gomock.Any(), p1).
			Return(helpers.CreateTestProduct(func(p *domain.Product) {
				p.ID = p1
				p.Code = "WID-1"
			}), nil)
		products.EXPECT().
			FindByID(gomock.Any(), p3).
			Return(helpers.CreateTestProduct(func(p *domain.Product) {
				p.ID = p3
				p.Code = "WID-3"
			}), nil)

		validator := services.NewStockValidator(movements, products, helpers.TestLogger())
		err := validator.Validate(ctx, []ports.SaleItemInput{
			saleItem(p1, 5),
			saleItem(p2, 4),
			saleItem(p3, 1),
		})

		var ise *domain.InsufficientStockError
		require.ErrorAs(t, err, &ise)
		require.Len(t, ise.Shortfalls, 2)
		assert.Equal(t, p1, ise.Shortfalls[0].ProductID)
		assert.Equal(t, 5, ise.Shortfalls[0].Required)
		assert.Equal(t, 2, ise.Shortfalls[0].Available)
		assert.Equal(t, "WID-1", ise.Shortfalls[0].ProductCode)
		assert.Equal(t, p3, ise.Shortfalls[1].ProductID)
		assert.Equal(t, 1, ise.Shortfalls[1].Required)
		assert.Equal(t, 0, ise.Shortfalls[1].Available)
	})

	t.Run("aggregates_repeated_product_across_lines", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		movements := mocks.NewMockMovementRepository(ctrl)
		products := mocks.NewMockProductRepository(ctrl)

		p1 := uuid.New()
		movements.EXPECT().
			TotalAvailableMany(gomock.Any(), []uuid.UUID{p1}).
			Return(map[uuid.UUID]int{p1: 7}, nil)
		products.EXPECT().
			FindByID(gomock.Any(), p1).
			Return(nil, nil)

		validator := services.NewStockValidator(movements, products, helpers.TestLogger())
		err := validator.Validate(ctx, []ports.SaleItemInput{saleItem(p1, 4), saleItem(p1, 4)})

		var ise *domain.InsufficientStockError
		require.ErrorAs(t, err, &ise)
		require.Len(t, ise.Shortfalls, 1)
		assert.Equal(t, 8, ise.Shortfalls[0].Required)
		assert.Equal(t, 7, ise.Shortfalls[0].Available)
		assert.Empty(t, ise.Shortfalls[0].ProductCode)
	})

	t.Run("empty_request_is_valid", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		movements := mocks.NewMockMovementRepository(ctrl)
		products := mocks.NewMockProductRepository(ctrl)

		validator := services.NewStockValidator(movements, products, helpers.TestLogger())
		assert.NoError(t, validator.Validate(ctx, nil))
	})
}

func TestAggregateRequirements(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	required, order := services.AggregateRequirements([]ports.SaleItemInput{
		saleItem(p1, 3),
		saleItem(p2, 1),
		saleItem(p1, 2),
	})

	assert.Equal(t, []uuid.UUID{p1, p2}, order)
	assert.Equal(t, 5, required[p1])
	assert.Equal(t, 1, required[p2])
}
