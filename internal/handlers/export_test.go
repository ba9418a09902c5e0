// internal/handlers/export_test.go
package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	redis_a "github.com/emartell/storeflow-be/internal/adapters/redis_adapter"
	"github.com/emartell/storeflow-be/internal/handlers"
	"github.com/emartell/storeflow-be/test/helpers"
	"github.com/emartell/storeflow-be/test/mocks"
)

// mockRows implements pgx.Rows over a fixed grid of values.
type mockRows struct {
	values [][]any
	index  int
	closed bool
}

func (m *mockRows) Close() {
	m.closed = true
}

func (m *mockRows) Err() error {
	return nil
}

func (m *mockRows) Next() bool {
	if m.index < len(m.values) {
		m.index++
		return true
	}
	return false
}

func (m *mockRows) Scan(dest ...any) error {
	if m.index == 0 || m.index > len(m.values) {
		return pgx.ErrNoRows
	}
	row := m.values[m.index-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *bool:
			*p = row[i].(bool)
		case *time.Time:
			*p = row[i].(time.Time)
		case *decimal.Decimal:
			*p = row[i].(decimal.Decimal)
		}
	}
	return nil
}

func (m *mockRows) Values() ([]any, error) {
	return nil, nil
}

func (m *mockRows) RawValues() [][]byte {
	return nil
}

func (m *mockRows) Conn() *pgx.Conn {
	return nil
}

func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription {
	return []pgconn.FieldDescription{}
}

func (m *mockRows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag{}
}

func saleRows() pgx.Rows {
	saleDate := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	batchDate := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &mockRows{
		values: [][]any{
			{
				"6f1c9a2e-0000-0000-0000-000000000001", saleDate,
				"Corner Deli", "cash", true, false,
				"WID-1", "Widget", 10,
				decimal.NewFromInt(5), decimal.NewFromInt(2),
				decimal.Zero, decimal.NewFromInt(50),
				"6f1c9a2e-0000-0000-0000-0000000000aa", batchDate,
			},
		},
	}
}

func ledgerRows() pgx.Rows {
	receivedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &mockRows{
		values: [][]any{
			{"WID-1", "Widget", "Acme Supply", 10, 4, decimal.NewFromInt(2), receivedAt, "PO-17"},
		},
	}
}

func TestExportHandler_ExportJSON(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    map[string]string
		setupMocks     func(*mocks.MockDatabase, *mocks.MockCacheRepository)
		expectedStatus int
		validateBody   func(*testing.T, []byte)
	}{
		{
			name:        "exports_json_with_default_params",
			queryParams: map[string]string{},
			setupMocks: func(db *mocks.MockDatabase, cache *mocks.MockCacheRepository) {
				cache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(redis_a.ErrCacheMiss)

				db.EXPECT().
					Query(gomock.Any(), gomock.Any()).
					Return(saleRows(), nil)

				cache.EXPECT().
					Set(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var response handlers.JSONExportResponse
				err := json.Unmarshal(body, &response)
				require.NoError(t, err)
				require.Len(t, response.Sales, 1)
				assert.Equal(t, "WID-1", response.Sales[0]["product_code"])
				assert.Equal(t, 1, response.Metadata.TotalRows)
			},
		},
		{
			name:        "unpaid_filter_applied",
			queryParams: map[string]string{"unpaid": "true"},
			setupMocks: func(db *mocks.MockDatabase, cache *mocks.MockCacheRepository) {
				cache.EXPECT().
					Get(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(redis_a.ErrCacheMiss)

				db.EXPECT().
					Query(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
						assert.Contains(t, sql, "s.is_paid = FALSE")
						return saleRows(), nil
					})

				cache.EXPECT().
					Set(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil).
					AnyTimes()
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var response handlers.JSONExportResponse
				err := json.Unmarshal(body, &response)
				require.NoError(t, err)
				assert.True(t, response.Metadata.UnpaidOnly)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockDB := mocks.NewMockDatabase(ctrl)
			mockCache := mocks.NewMockCacheRepository(ctrl)
			logger := helpers.TestLogger()

			handler := handlers.NewExportHandler(mockDB, mockCache, logger)

			tt.setupMocks(mockDB, mockCache)

			req := httptest.NewRequest("GET", "/api/v1/export/json", nil)
			if len(tt.queryParams) > 0 {
				q := req.URL.Query()
				for k, v := range tt.queryParams {
					q.Add(k, v)
				}
				req.URL.RawQuery = q.Encode()
			}
			w := httptest.NewRecorder()

			handler.ExportJSON(w, req)

			resp := w.Result()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			if tt.validateBody != nil {
				tt.validateBody(t, w.Body.Bytes())
			}
		})
	}
}

func TestExportHandler_ExportExcel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mocks.NewMockDatabase(ctrl)
	mockCache := mocks.NewMockCacheRepository(ctrl)
	logger := helpers.TestLogger()

	handler := handlers.NewExportHandler(mockDB, mockCache, logger)

	// Sales sheet first, then the stock ledger sheet.
	gomock.InOrder(
		mockDB.EXPECT().
			Query(gomock.Any(), gomock.Any()).
			Return(saleRows(), nil),
		mockDB.EXPECT().
			Query(gomock.Any(), gomock.Any()).
			Return(ledgerRows(), nil),
	)

	req := httptest.NewRequest("GET", "/api/v1/export/excel", nil)
	w := httptest.NewRecorder()

	handler.ExportExcel(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "sales_export_")
	assert.NotEmpty(t, w.Body.Bytes())
}
