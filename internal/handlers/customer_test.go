// internal/handlers/customer_test.go
package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func newCustomerRouter(customers ports.CustomerRepository) http.Handler {
	h := handlers.NewCustomerHandler(customers, helpers.TestLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/customers", h.CreateCustomer)
	mux.HandleFunc("GET /api/v1/customers/{id}", h.GetCustomer)
	return mux
}

func TestCustomerHandler_GetCustomer(t *testing.T) {
	t.Run("reports_available_credit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		customers := mocks.NewMockCustomerRepository(ctrl)

		customer := helpers.CreateTestCustomer(func(c *domain.Customer) {
			c.CreditLimit = decimal.NewFromInt(1000)
			c.OutstandingBalance = decimal.NewFromFloat(250.50)
		})
		customers.EXPECT().FindByID(gomock.Any(), customer.ID).Return(customer, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/"+customer.ID.String(), nil)
		rec := httptest.NewRecorder()
		newCustomerRouter(customers).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Name               string          `json:"name"`
			CreditLimit        decimal.Decimal `json:"credit_limit"`
			OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
			AvailableCredit    decimal.Decimal `json:"available_credit"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, customer.Name, body.Name)
		assert.True(t, decimal.NewFromFloat(749.50).Equal(body.AvailableCredit),
			"got %s", body.AvailableCredit)
	})

	t.Run("zero_limit_means_no_credit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		customers := mocks.NewMockCustomerRepository(ctrl)

		customer := helpers.CreateTestCustomer(func(c *domain.Customer) {
			c.CreditLimit = decimal.Zero
		})
		customers.EXPECT().FindByID(gomock.Any(), customer.ID).Return(customer, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/"+customer.ID.String(), nil)
		rec := httptest.NewRecorder()
		newCustomerRouter(customers).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			AvailableCredit decimal.Decimal `json:"available_credit"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.AvailableCredit.IsZero(), "got %s", body.AvailableCredit)
	})

	t.Run("unknown_customer_is_404", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		customers := mocks.NewMockCustomerRepository(ctrl)
		id := uuid.New()
		customers.EXPECT().FindByID(gomock.Any(), id).Return(nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/"+id.String(), nil)
		rec := httptest.NewRecorder()
		newCustomerRouter(customers).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCustomerHandler_CreateCustomer(t *testing.T) {
	t.Run("created_with_full_credit_available", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		customers := mocks.NewMockCustomerRepository(ctrl)
		customers.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

		body := `{"name":"Acme Retail","credit_limit":"500"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", strings.NewReader(body))
		rec := httptest.NewRecorder()
		newCustomerRouter(customers).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp struct {
			AvailableCredit decimal.Decimal `json:"available_credit"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, decimal.NewFromInt(500).Equal(resp.AvailableCredit),
			"got %s", resp.AvailableCredit)
	})

	t.Run("blank_name_rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		customers := mocks.NewMockCustomerRepository(ctrl)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/customers", strings.NewReader(`{"name":"  "}`))
		rec := httptest.NewRecorder()
		newCustomerRouter(customers).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
