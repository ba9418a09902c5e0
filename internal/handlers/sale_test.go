// internal/handlers/sale_test.go
package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/internal/handlers"
	"github.com/emartell/storeflow-be/test/helpers"
	"github.com/emartell/storeflow-be/test/mocks"
)

func newSaleRouter(service ports.SaleService) http.Handler {
	h := handlers.NewSaleHandler(service, helpers.TestLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sales", h.CreateSale)
	mux.HandleFunc("GET /api/v1/sales", h.ListSales)
	mux.HandleFunc("GET /api/v1/sales/{id}", h.GetSale)
	mux.HandleFunc("DELETE /api/v1/sales/{id}", h.DeleteSale)
	mux.HandleFunc("POST /api/v1/sales/availability", h.CheckAvailability)
	mux.HandleFunc("POST /api/v1/sales/{id}/pay", h.MarkPaid)
	mux.HandleFunc("POST /api/v1/sales/{id}/bounce", h.MarkBounced)
	mux.HandleFunc("POST /api/v1/sales/{id}/clear-bounce", h.ClearBounced)
	return mux
}

func TestSaleHandler_CreateSale(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)

		customerID := uuid.New()
		sale := helpers.CreateTestSale(customerID)
		service.EXPECT().
			CreateSale(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ interface{}, input ports.CreateSaleInput) (*domain.Sale, error) {
				assert.Equal(t, customerID, input.CustomerID)
				assert.Equal(t, domain.PaymentCash, input.PaymentMethod)
				require.Len(t, input.Items, 1)
				assert.Equal(t, 5, input.Items[0].Quantity)
				return sale, nil
			})

		body, _ := json.Marshal(ports.CreateSaleInput{
			CustomerID:    customerID,
			PaymentMethod: domain.PaymentCash,
			Items: []ports.SaleItemInput{{
				ProductID: uuid.New(),
				Quantity:  5,
				UnitPrice: decimal.NewFromFloat(5.00),
			}},
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var got domain.Sale
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, sale.ID, got.ID)
	})

	t.Run("malformed_body", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation_error_maps_to_400", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		service.EXPECT().
			CreateSale(gomock.Any(), gomock.Any()).
			Return(nil, domain.NewValidationError("quantity must be positive"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader([]byte("{}")))
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "quantity must be positive")
	})

	t.Run("insufficient_stock_maps_to_409_with_shortfalls", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		productID := uuid.New()
		service.EXPECT().
			CreateSale(gomock.Any(), gomock.Any()).
			Return(nil, &domain.InsufficientStockError{Shortfalls: []domain.Shortfall{{
				ProductID:   productID,
				ProductCode: "WID-1",
				Required:    5,
				Available:   2,
			}}})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader([]byte("{}")))
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)

		var resp struct {
			Error      string             `json:"error"`
			Shortfalls []domain.Shortfall `json:"shortfalls"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "insufficient stock", resp.Error)
		require.Len(t, resp.Shortfalls, 1)
		assert.Equal(t, "WID-1", resp.Shortfalls[0].ProductCode)
	})
}

func TestSaleHandler_GetSale(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		sale := helpers.CreateTestSale(uuid.New())
		service.EXPECT().GetSale(gomock.Any(), sale.ID).Return(sale, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/"+sale.ID.String(), nil)
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad_id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not_found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		id := uuid.New()
		service.EXPECT().
			GetSale(gomock.Any(), id).
			Return(nil, &domain.NotFoundError{Entity: "sale", ID: id})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/"+id.String(), nil)
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSaleHandler_ListSales(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := mocks.NewMockSaleService(ctrl)

	customerID := uuid.New()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	service.EXPECT().
		ListSales(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, params ports.SaleListParams) (*ports.SaleListResult, error) {
			assert.Equal(t, 2, params.Page)
			assert.Equal(t, 25, params.PageSize)
			require.NotNil(t, params.CustomerID)
			assert.Equal(t, customerID, *params.CustomerID)
			assert.True(t, params.UnpaidOnly)
			require.NotNil(t, params.From)
			assert.True(t, params.From.Equal(from))
			assert.Equal(t, "asc", params.SortOrder)
			return &ports.SaleListResult{Page: 2, PageSize: 25}, nil
		})

	url := fmt.Sprintf("/api/v1/sales?page=2&limit=25&customer_id=%s&unpaid=true&from=%s&order=asc",
		customerID, from.Format(time.RFC3339))
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	newSaleRouter(service).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSaleHandler_CheckAvailability(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := mocks.NewMockSaleService(ctrl)
	service.EXPECT().CheckAvailability(gomock.Any(), gomock.Any()).Return(false, nil)

	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":3,"unit_price":"5.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/availability", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	newSaleRouter(service).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["available"])
}

func TestSaleHandler_MarkPaid(t *testing.T) {
	t.Run("paid", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		sale := helpers.CreateTestSale(uuid.New())
		service.EXPECT().MarkPaid(gomock.Any(), sale.ID).Return(sale, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/"+sale.ID.String()+"/pay", nil)
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("already_paid_maps_to_409", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		id := uuid.New()
		service.EXPECT().MarkPaid(gomock.Any(), id).Return(nil, domain.ErrAlreadyPaid)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/"+id.String()+"/pay", nil)
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestSaleHandler_DeleteSale(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := mocks.NewMockSaleService(ctrl)
	id := uuid.New()
	service.EXPECT().DeleteSale(gomock.Any(), id).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sales/"+id.String(), nil)
	rec := httptest.NewRecorder()
	newSaleRouter(service).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())
}

func TestSaleHandler_BounceLifecycle(t *testing.T) {
	t.Run("bounce_with_notes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		sale := helpers.CreateTestCheckSale(uuid.New(), time.Now().Add(7*24*time.Hour))
		service.EXPECT().
			MarkCheckBounced(gomock.Any(), sale.ID, "returned by bank").
			Return(sale, nil)

		body := `{"notes":"returned by bank"}`
		req := httptest.NewRequest(http.MethodPost,
			"/api/v1/sales/"+sale.ID.String()+"/bounce", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bounce_without_body", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		sale := helpers.CreateTestCheckSale(uuid.New(), time.Now().Add(7*24*time.Hour))
		service.EXPECT().MarkCheckBounced(gomock.Any(), sale.ID, "").Return(sale, nil)

		req := httptest.NewRequest(http.MethodPost,
			"/api/v1/sales/"+sale.ID.String()+"/bounce", nil)
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("clear_bounce_on_cash_sale_maps_to_409", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := mocks.NewMockSaleService(ctrl)
		id := uuid.New()
		service.EXPECT().
			ClearCheckBounced(gomock.Any(), id).
			Return(nil, domain.ErrNotCheckPayment)

		req := httptest.NewRequest(http.MethodPost,
			"/api/v1/sales/"+id.String()+"/clear-bounce", nil)
		rec := httptest.NewRecorder()
		newSaleRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
