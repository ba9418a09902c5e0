// internal/workers/notifications_processor_test.go
package workers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/emartell/storeflow-be/internal/core/domain"
	"github.com/emartell/storeflow-be/internal/pkg/config"
	"github.com/emartell/storeflow-be/internal/workers"
	"github.com/emartell/storeflow-be/test/helpers"
	"github.com/emartell/storeflow-be/test/mocks"
)

func emailTask(t *testing.T, payload workers.EmailPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(workers.TypeSendEmail, data)
}

func TestNotificationProcessor_SendEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("logs_instead_of_sending_without_smtp_host", func(t *testing.T) {
		p := workers.NewNotificationProcessor(&config.Config{}, helpers.TestLogger())

		task := emailTask(t, workers.EmailPayload{
			To:      "jane@example.test",
			Subject: "Check CHK-1001 due on 2026-09-04",
			Body:    "Hello Jane,\n",
		})
		assert.NoError(t, p.SendEmail(ctx, task))
	})

	t.Run("rejects_malformed_payload", func(t *testing.T) {
		p := workers.NewNotificationProcessor(&config.Config{}, helpers.TestLogger())

		task := asynq.NewTask(workers.TypeSendEmail, []byte("{not json"))
		assert.Error(t, p.SendEmail(ctx, task))
	})

	t.Run("rejects_missing_recipient", func(t *testing.T) {
		p := workers.NewNotificationProcessor(&config.Config{}, helpers.TestLogger())

		task := emailTask(t, workers.EmailPayload{Subject: "no recipient"})
		assert.Error(t, p.SendEmail(ctx, task))
	})
}

func TestReminderProcessor_SkipsUnnotifiableChecks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sales := mocks.NewMockSaleRepository(ctrl)
	customers := mocks.NewMockCustomerRepository(ctrl)

	dueDate := time.Now().Add(48 * time.Hour)

	// A sale with no check details, one whose customer lookup fails, and
	// one whose customer has no email address. None should reach the
	// enqueue path, so passing a nil client is safe here.
	plainSale := helpers.CreateTestSale(helpers.CreateTestCustomer().ID)
	orphanSale := helpers.CreateTestCheckSale(helpers.CreateTestCustomer().ID, dueDate)
	noEmail := helpers.CreateTestCustomer(func(c *domain.Customer) { c.Email = "" })
	noEmailSale := helpers.CreateTestCheckSale(noEmail.ID, dueDate)

	window := 72 * time.Hour
	sales.EXPECT().
		ChecksDueBetween(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*domain.Sale{plainSale, orphanSale, noEmailSale}, nil)
	customers.EXPECT().
		FindByID(gomock.Any(), orphanSale.CustomerID).
		Return(nil, assert.AnError)
	customers.EXPECT().
		FindByID(gomock.Any(), noEmailSale.CustomerID).
		Return(noEmail, nil)

	p := workers.NewReminderProcessor(sales, customers, nil, window, helpers.TestLogger())

	task := asynq.NewTask(workers.TypeCheckReminders, nil)
	require.NoError(t, p.RemindDueChecks(context.Background(), task))
}
