package services_test

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/internal/core/services"
	"github.com/emartell/storeflow-be/test/helpers"
)

// fakeStore is an in-memory stand-in for the database used to drive long
// randomized operation sequences without a postgres container. The ledger
// semantics mirror the SQL adapter: guarded batch and counter adjustments,
// FIFO batch ordering, balance floored at zero.
type fakeStore struct {
	products  map[uuid.UUID]domain.Product
	suppliers map[uuid.UUID]domain.Supplier
	customers map[uuid.UUID]domain.Customer
	movements []domain.StockMovement
	sales     map[uuid.UUID]domain.Sale
	lines     map[uuid.UUID][]domain.SaleLine
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:  make(map[uuid.UUID]domain.Product),
		suppliers: make(map[uuid.UUID]domain.Supplier),
		customers: make(map[uuid.UUID]domain.Customer),
		sales:     make(map[uuid.UUID]domain.Sale),
		lines:     make(map[uuid.UUID][]domain.SaleLine),
	}
}

func (s *fakeStore) snapshot() *fakeStore {
	snap := newFakeStore()
	for id, p := range s.products {
		snap.products[id] = p
	}
	for id, sp := range s.suppliers {
		snap.suppliers[id] = sp
	}
	for id, c := range s.customers {
		snap.customers[id] = c
	}
	snap.movements = append([]domain.StockMovement(nil), s.movements...)
	for id, sale := range s.sales {
		sale.Lines = append([]domain.SaleLine(nil), sale.Lines...)
		if sale.Check != nil {
			check := *sale.Check
			sale.Check = &check
		}
		snap.sales[id] = sale
	}
	for id, lines := range s.lines {
		snap.lines[id] = append([]domain.SaleLine(nil), lines...)
	}
	return snap
}

func (s *fakeStore) restore(snap *fakeStore) {
	s.products = snap.products
	s.suppliers = snap.suppliers
	s.customers = snap.customers
	s.movements = snap.movements
	s.sales = snap.sales
	s.lines = snap.lines
}

// fakeDatabase rolls the store back to a snapshot when fn fails, matching the
// all-or-nothing guarantee the services get from a real transaction.
type fakeDatabase struct {
	store *fakeStore
}

var _ ports.Database = (*fakeDatabase)(nil)

func (d *fakeDatabase) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	snap := d.store.snapshot()
	if err := fn(nil); err != nil {
		d.store.restore(snap)
		return err
	}
	return nil
}

func (d *fakeDatabase) TransactionWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return d.Transaction(ctx, fn)
}

func (d *fakeDatabase) Pool() *pgxpool.Pool               { return nil }
func (d *fakeDatabase) Close()                            {}
func (d *fakeDatabase) Ping(ctx context.Context) error    { return nil }
func (d *fakeDatabase) Health(ctx context.Context) map[string]interface{} { return nil }
func (d *fakeDatabase) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("raw queries are not supported by the fake store")
}
func (d *fakeDatabase) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("raw queries are not supported by the fake store")
}
func (d *fakeDatabase) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("raw queries are not supported by the fake store")
}

type fakeMovements struct{ store *fakeStore }

var _ ports.MovementRepository = (*fakeMovements)(nil)

func (r *fakeMovements) WithTx(tx pgx.Tx) ports.MovementRepository { return r }

func (r *fakeMovements) Save(ctx context.Context, m *domain.StockMovement) error {
	r.store.movements = append(r.store.movements, *m)
	return nil
}

func (r *fakeMovements) FindByID(ctx context.Context, id uuid.UUID) (*domain.StockMovement, error) {
	for i := range r.store.movements {
		if r.store.movements[i].ID == id {
			m := r.store.movements[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (r *fakeMovements) AvailableBatchesForUpdate(ctx context.Context, productID uuid.UUID) ([]domain.StockMovement, error) {
	var batches []domain.StockMovement
	for _, m := range r.store.movements {
		if m.ProductID == productID && m.MovementType == domain.MovementIn && m.RemainingQuantity > 0 {
			batches = append(batches, m)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].OccurredAt.Equal(batches[j].OccurredAt) {
			return batches[i].OccurredAt.Before(batches[j].OccurredAt)
		}
		return batches[i].ID.String() < batches[j].ID.String()
	})
	return batches, nil
}

func (r *fakeMovements) TotalAvailable(ctx context.Context, productID uuid.UUID) (int, error) {
	total := 0
	for _, m := range r.store.movements {
		if m.ProductID == productID && m.MovementType == domain.MovementIn {
			total += m.RemainingQuantity
		}
	}
	return total, nil
}

func (r *fakeMovements) TotalAvailableMany(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	totals := make(map[uuid.UUID]int, len(productIDs))
	for _, id := range productIDs {
		total, _ := r.TotalAvailable(ctx, id)
		totals[id] = total
	}
	return totals, nil
}

func (r *fakeMovements) AdjustRemaining(ctx context.Context, batchID uuid.UUID, delta int) (int, error) {
	for i := range r.store.movements {
		m := &r.store.movements[i]
		if m.ID != batchID || m.MovementType != domain.MovementIn {
			continue
		}
		next := m.RemainingQuantity + delta
		if next < 0 || next > m.Quantity {
			return 0, domain.NewConsistencyError("remaining adjustment of %+d rejected for batch %s", delta, batchID)
		}
		m.RemainingQuantity = next
		return next, nil
	}
	return 0, domain.NewConsistencyError("remaining adjustment of %+d rejected for batch %s", delta, batchID)
}

func (r *fakeMovements) List(ctx context.Context, params ports.MovementListParams) ([]*domain.StockMovement, int64, error) {
	var matched []domain.StockMovement
	for _, m := range r.store.movements {
		if params.ProductID != nil && m.ProductID != *params.ProductID {
			continue
		}
		if params.MovementType != "" && string(m.MovementType) != params.MovementType {
			continue
		}
		if params.AvailableOnly && m.RemainingQuantity == 0 {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool {
		before := matched[i].OccurredAt.Before(matched[j].OccurredAt)
		if params.SortOrder == "asc" {
			return before
		}
		return !before
	})
	result := make([]*domain.StockMovement, len(matched))
	for i := range matched {
		m := matched[i]
		result[i] = &m
	}
	return result, int64(len(result)), nil
}

type fakeProducts struct{ store *fakeStore }

var _ ports.ProductRepository = (*fakeProducts)(nil)

func (r *fakeProducts) WithTx(tx pgx.Tx) ports.ProductRepository { return r }

func (r *fakeProducts) Save(ctx context.Context, p *domain.Product) error {
	r.store.products[p.ID] = *p
	return nil
}

func (r *fakeProducts) Update(ctx context.Context, p *domain.Product) error {
	r.store.products[p.ID] = *p
	return nil
}

func (r *fakeProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if p, ok := r.store.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *fakeProducts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeProducts) FindByCode(ctx context.Context, code string) (*domain.Product, error) {
	for _, p := range r.store.products {
		if p.Code == code {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeProducts) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	p, ok := r.store.products[id]
	if !ok || p.CurrentStock+delta < 0 {
		return 0, domain.NewConsistencyError("stock adjustment of %+d rejected for product %s", delta, id)
	}
	p.CurrentStock += delta
	r.store.products[id] = p
	return p.CurrentStock, nil
}

func (r *fakeProducts) List(ctx context.Context, params ports.ProductListParams) ([]*domain.Product, int64, error) {
	return nil, 0, nil
}

func (r *fakeProducts) LowStock(ctx context.Context) ([]*domain.Product, error) { return nil, nil }

func (r *fakeProducts) Deactivate(ctx context.Context, id uuid.UUID) error { return nil }

type fakeSales struct{ store *fakeStore }

var _ ports.SaleRepository = (*fakeSales)(nil)

func (r *fakeSales) WithTx(tx pgx.Tx) ports.SaleRepository { return r }

func (r *fakeSales) SaveHeader(ctx context.Context, s *domain.Sale) error {
	stored := *s
	stored.Lines = nil
	if s.Check != nil {
		check := *s.Check
		stored.Check = &check
	}
	r.store.sales[s.ID] = stored
	return nil
}

func (r *fakeSales) InsertLines(ctx context.Context, lines []domain.SaleLine) error {
	for _, l := range lines {
		r.store.lines[l.SaleID] = append(r.store.lines[l.SaleID], l)
	}
	return nil
}

func (r *fakeSales) FindByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	if s, ok := r.store.sales[id]; ok {
		if s.Check != nil {
			check := *s.Check
			s.Check = &check
		}
		return &s, nil
	}
	return nil, nil
}

func (r *fakeSales) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeSales) FindLines(ctx context.Context, saleID uuid.UUID) ([]domain.SaleLine, error) {
	return append([]domain.SaleLine(nil), r.store.lines[saleID]...), nil
}

func (r *fakeSales) UpdateTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	s, ok := r.store.sales[id]
	if !ok {
		return &domain.NotFoundError{Entity: "sale", ID: id}
	}
	s.TotalAmount = total
	r.store.sales[id] = s
	return nil
}

func (r *fakeSales) UpdateStatus(ctx context.Context, sale *domain.Sale) error {
	if _, ok := r.store.sales[sale.ID]; !ok {
		return &domain.NotFoundError{Entity: "sale", ID: sale.ID}
	}
	stored := *sale
	stored.Lines = nil
	if sale.Check != nil {
		check := *sale.Check
		stored.Check = &check
	}
	r.store.sales[sale.ID] = stored
	return nil
}

func (r *fakeSales) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.store.sales[id]; !ok {
		return &domain.NotFoundError{Entity: "sale", ID: id}
	}
	delete(r.store.sales, id)
	delete(r.store.lines, id)
	return nil
}

func (r *fakeSales) List(ctx context.Context, params ports.SaleListParams) ([]*domain.Sale, int64, error) {
	return nil, 0, nil
}

func (r *fakeSales) ChecksDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Sale, error) {
	return nil, nil
}

type fakeCustomers struct{ store *fakeStore }

var _ ports.CustomerRepository = (*fakeCustomers)(nil)

func (r *fakeCustomers) WithTx(tx pgx.Tx) ports.CustomerRepository { return r }

func (r *fakeCustomers) Save(ctx context.Context, c *domain.Customer) error {
	r.store.customers[c.ID] = *c
	return nil
}

func (r *fakeCustomers) FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	if c, ok := r.store.customers[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (r *fakeCustomers) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	c, ok := r.store.customers[id]
	if !ok {
		return decimal.Zero, &domain.NotFoundError{Entity: "customer", ID: id}
	}
	c.OutstandingBalance = c.OutstandingBalance.Add(delta)
	if c.OutstandingBalance.IsNegative() {
		c.OutstandingBalance = decimal.Zero
	}
	r.store.customers[id] = c
	return c.OutstandingBalance, nil
}

type fakeSuppliers struct{ store *fakeStore }

var _ ports.SupplierRepository = (*fakeSuppliers)(nil)

func (r *fakeSuppliers) WithTx(tx pgx.Tx) ports.SupplierRepository { return r }

func (r *fakeSuppliers) Save(ctx context.Context, s *domain.Supplier) error {
	r.store.suppliers[s.ID] = *s
	return nil
}

func (r *fakeSuppliers) FindByID(ctx context.Context, id uuid.UUID) (*domain.Supplier, error) {
	if s, ok := r.store.suppliers[id]; ok {
		return &s, nil
	}
	return nil, nil
}

// TestLedgerConservationUnderRandomOperations drives a long randomized
// sequence of receipts, sales, egresses, deletions, and payments through the
// real services against the fake store, and re-checks the ledger invariants
// after every step: the cached counter equals the summed batch remainders,
// every remainder stays within [0, quantity], and what was received minus
// what is held by live sales and egresses equals what is still on hand.
func TestLedgerConservationUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	store := newFakeStore()
	db := &fakeDatabase{store: store}
	movements := &fakeMovements{store: store}
	products := &fakeProducts{store: store}
	salesRepo := &fakeSales{store: store}
	customers := &fakeCustomers{store: store}
	suppliers := &fakeSuppliers{store: store}

	saleSvc := services.NewSaleService(db, salesRepo, movements, products, customers, nil, helpers.TestLogger())
	stockSvc := services.NewStockService(db, movements, products, suppliers, nil, helpers.TestLogger())

	supplier := helpers.CreateTestSupplier()
	customer := helpers.CreateTestCustomer()
	require.NoError(t, suppliers.Save(ctx, supplier))
	require.NoError(t, customers.Save(ctx, customer))

	productIDs := make([]uuid.UUID, 3)
	for i := range productIDs {
		product := helpers.CreateTestProduct(func(p *domain.Product) {
			p.Code = "PRP-" + string(rune('A'+i))
		})
		require.NoError(t, products.Save(ctx, product))
		productIDs[i] = product.ID
	}

	var liveSales []uuid.UUID
	receiptClock := time.Now().Add(-30 * 24 * time.Hour)

	checkInvariants := func(step int) {
		for _, productID := range productIDs {
			received, egressed, ledger := 0, 0, 0
			for _, m := range store.movements {
				if m.ProductID != productID {
					continue
				}
				require.GreaterOrEqual(t, m.RemainingQuantity, 0, "step %d: negative remainder", step)
				require.LessOrEqual(t, m.RemainingQuantity, m.Quantity, "step %d: remainder above batch size", step)
				switch m.MovementType {
				case domain.MovementIn:
					received += m.Quantity
					ledger += m.RemainingQuantity
				case domain.MovementOut:
					egressed += m.Quantity
				}
			}
			sold := 0
			for _, lines := range store.lines {
				for _, l := range lines {
					if l.ProductID == productID {
						sold += l.Quantity
					}
				}
			}
			require.Equal(t, received-egressed-sold, ledger,
				"step %d: ledger must equal received minus egressed minus held by live sales", step)
			require.Equal(t, ledger, store.products[productID].CurrentStock,
				"step %d: cached counter drifted from ledger", step)
		}
	}

	for step := 0; step < 400; step++ {
		productID := productIDs[rng.Intn(len(productIDs))]

		switch rng.Intn(10) {
		case 0, 1, 2:
			receiptClock = receiptClock.Add(time.Minute)
			occurredAt := receiptClock
			_, err := stockSvc.RecordMovement(ctx, ports.MovementInput{
				ProductID:    productID,
				MovementType: "IN",
				Quantity:     1 + rng.Intn(20),
				UnitCost:     decimal.NewFromFloat(0.50).Add(decimal.NewFromInt(int64(rng.Intn(5)))),
				SupplierID:   &supplier.ID,
				OccurredAt:   &occurredAt,
			}, domain.ModeBackfill)
			require.NoError(t, err)

		case 3, 4, 5, 6:
			items := []ports.SaleItemInput{{
				ProductID: productID,
				Quantity:  1 + rng.Intn(8),
				UnitPrice: decimal.NewFromFloat(5.00),
				Discount:  decimal.Zero,
			}}
			if rng.Intn(3) == 0 {
				items = append(items, ports.SaleItemInput{
					ProductID: productIDs[rng.Intn(len(productIDs))],
					Quantity:  1 + rng.Intn(4),
					UnitPrice: decimal.NewFromFloat(3.00),
					Discount:  decimal.Zero,
				})
			}
			input := ports.CreateSaleInput{
				CustomerID:    customer.ID,
				PaymentMethod: domain.PaymentCash,
				Items:         items,
			}
			if rng.Intn(4) == 0 {
				input.PaymentMethod = domain.PaymentCreditCheck
				input.Check = &ports.CheckInput{
					CheckNumber: "CHK-PROP",
					BankName:    "Property Bank",
					CheckDate:   time.Now().Add(7 * 24 * time.Hour),
				}
			}
			sale, err := saleSvc.CreateSale(ctx, input)
			if err != nil {
				var ise *domain.InsufficientStockError
				require.True(t, errors.As(err, &ise), "step %d: unexpected error %v", step, err)
			} else {
				liveSales = append(liveSales, sale.ID)
			}

		case 7:
			_, err := stockSvc.RecordMovement(ctx, ports.MovementInput{
				ProductID:    productID,
				MovementType: "OUT",
				Quantity:     1 + rng.Intn(6),
			}, domain.ModeStrict)
			if err != nil {
				var ise *domain.InsufficientStockError
				require.True(t, errors.As(err, &ise), "step %d: unexpected error %v", step, err)
			}

		case 8:
			if len(liveSales) == 0 {
				continue
			}
			idx := rng.Intn(len(liveSales))
			require.NoError(t, saleSvc.DeleteSale(ctx, liveSales[idx]))
			liveSales = append(liveSales[:idx], liveSales[idx+1:]...)

		case 9:
			if len(liveSales) == 0 {
				continue
			}
			_, err := saleSvc.MarkPaid(ctx, liveSales[rng.Intn(len(liveSales))])
			if err != nil {
				require.ErrorIs(t, err, domain.ErrAlreadyPaid, "step %d: unexpected error %v", step, err)
			}
		}

		checkInvariants(step)
	}

	// Every live sale must still be exactly reversible at the end of the run.
	for _, saleID := range liveSales {
		require.NoError(t, saleSvc.DeleteSale(ctx, saleID))
	}
	checkInvariants(400)

	for _, productID := range productIDs {
		received, egressed := 0, 0
		for _, m := range store.movements {
			if m.ProductID != productID {
				continue
			}
			if m.MovementType == domain.MovementIn {
				received += m.Quantity
			} else {
				egressed += m.Quantity
			}
		}
		require.Equal(t, received-egressed, store.products[productID].CurrentStock,
			"with all sales deleted, everything received minus egressed must be back on hand")
	}
}
