// internal/workers/notifications_processor.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/emartell/storeflow-be/internal/core/ports"
	"github.com/emartell/storeflow-be/internal/pkg/config"
	"github.com/hibiken/asynq"
)

// EmailPayload is the task body for TypeSendEmail.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotificationProcessor delivers reminder emails over SMTP. Without a
// configured SMTP host it logs the message instead, which is the normal
// mode in development.
type NotificationProcessor struct {
	smtp   config.SMTPConfig
	logger *slog.Logger
}

func NewNotificationProcessor(cfg *config.Config, logger *slog.Logger) *NotificationProcessor {
	return &NotificationProcessor{
		smtp:   cfg.SMTP,
		logger: logger.With(slog.String("processor", "notification")),
	}
}

// SendEmail handles a TypeSendEmail task.
func (p *NotificationProcessor) SendEmail(ctx context.Context, t *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email payload: %w", err)
	}
	if payload.To == "" {
		return fmt.Errorf("email payload has no recipient")
	}

	if p.smtp.Host == "" {
		p.logger.InfoContext(ctx, "no SMTP host configured, logging email instead",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject),
			slog.String("body", payload.Body))
		return nil
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		p.smtp.From, payload.To, payload.Subject, payload.Body,
	))

	auth := smtp.PlainAuth("", p.smtp.Username, p.smtp.Password, p.smtp.Host)
	addr := p.smtp.Host + ":" + p.smtp.Port
	if err := smtp.SendMail(addr, auth, p.smtp.From, []string{payload.To}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", payload.To, err)
	}

	p.logger.InfoContext(ctx, "email sent",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}

// ReminderProcessor scans for credit checks nearing their due date and fans
// out one email task per unpaid check.
type ReminderProcessor struct {
	sales     ports.SaleRepository
	customers ports.CustomerRepository
	client    *asynq.Client
	window    time.Duration
	logger    *slog.Logger
}

// NewReminderProcessor creates a new check reminder processor.
func NewReminderProcessor(
	sales ports.SaleRepository,
	customers ports.CustomerRepository,
	client *asynq.Client,
	window time.Duration,
	logger *slog.Logger,
) *ReminderProcessor {
	return &ReminderProcessor{
		sales:     sales,
		customers: customers,
		client:    client,
		window:    window,
		logger:    logger.With(slog.String("processor", "reminder")),
	}
}

// RemindDueChecks enqueues a reminder email for every unpaid, non-bounced
// check due inside the configured window.
func (p *ReminderProcessor) RemindDueChecks(ctx context.Context, t *asynq.Task) error {
	now := time.Now()

	due, err := p.sales.ChecksDueBetween(ctx, now, now.Add(p.window))
	if err != nil {
		return fmt.Errorf("failed to find due checks: %w", err)
	}

	sent := 0
	for _, sale := range due {
		if sale.Check == nil {
			continue
		}

		customer, err := p.customers.FindByID(ctx, sale.CustomerID)
		if err != nil {
			p.logger.WarnContext(ctx, "skipping reminder, customer lookup failed",
				slog.String("sale_id", sale.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if customer.Email == "" {
			continue
		}

		dueDate := sale.Check.CheckDate.Format("2006-01-02")
		payload, err := json.Marshal(EmailPayload{
			To:      customer.Email,
			Subject: fmt.Sprintf("Check %s due on %s", sale.Check.CheckNumber, dueDate),
			Body: fmt.Sprintf(
				"Hello %s,\n\nCheck %s drawn on %s for %s is due on %s. Please make sure funds are available.\n",
				customer.Name, sale.Check.CheckNumber, sale.Check.BankName,
				sale.TotalAmount.StringFixed(2), dueDate,
			),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal reminder payload: %w", err)
		}

		if _, err := p.client.EnqueueContext(ctx, asynq.NewTask(TypeSendEmail, payload)); err != nil {
			return fmt.Errorf("failed to enqueue reminder email: %w", err)
		}
		sent++
	}

	p.logger.InfoContext(ctx, "check reminders enqueued",
		slog.Int("due_checks", len(due)),
		slog.Int("reminders_sent", sent))

	return nil
}
