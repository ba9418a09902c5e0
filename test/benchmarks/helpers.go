// test/benchmarks/helpers.go
package benchmarks

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/test/helpers"
)

// seededLedger holds the fixture IDs a benchmark iterates over.
type seededLedger struct {
	SupplierID uuid.UUID
	CustomerID uuid.UUID
	ProductIDs []uuid.UUID
}

// seedLedger loads products with open batches so allocation benchmarks have
// inventory to consume. Each product gets batchesPerProduct batches of 1000
// units at staggered receipt dates.
func seedLedger(t *testing.T, testDB *helpers.TestDB, numProducts, batchesPerProduct int) *seededLedger {
	t.Helper()

	supplier := helpers.CreateTestSupplier()
	helpers.InsertSupplier(t, testDB.PgxPool, supplier)

	customer := helpers.CreateTestCustomer()
	helpers.InsertCustomer(t, testDB.PgxPool, customer)

	seeded := &seededLedger{
		SupplierID: supplier.ID,
		CustomerID: customer.ID,
		ProductIDs: make([]uuid.UUID, 0, numProducts),
	}

	base := time.Now().AddDate(0, -6, 0)
	for i := 0; i < numProducts; i++ {
		product := helpers.CreateTestProduct(func(p *domain.Product) {
			p.Code = fmt.Sprintf("BENCH-%04d", i)
			p.Name = fmt.Sprintf("Benchmark Product %d", i)
			p.CurrentStock = 0
		})
		helpers.InsertProduct(t, testDB.PgxPool, product)

		for j := 0; j < batchesPerProduct; j++ {
			batch := helpers.CreateTestBatch(
				product.ID, supplier.ID, 1000, 2.00+float64(j),
				base.Add(time.Duration(j)*24*time.Hour))
			helpers.InsertBatch(t, testDB.PgxPool, batch)
		}
		seeded.ProductIDs = append(seeded.ProductIDs, product.ID)
	}

	return seeded
}
