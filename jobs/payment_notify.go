package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gemvault/gemvault/internal/billing"
	jobmetrics "github.com/gemvault/gemvault/internal/jobs"
	"github.com/gemvault/gemvault/internal/shared"
)

// PaymentReader loads the current state of a payment.
type PaymentReader interface {
	GetPayment(ctx context.Context, actor shared.Actor, id int64) (billing.Payment, error)
}

// PaymentNotifyJob hands payment state changes to the customer outbox. Mail
// delivery is owned by the outbox consumer; this job records the event once
// the payment still holds the announced state.
type PaymentNotifyJob struct {
	Payments PaymentReader
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPaymentNotifyJob initialises the notification handler.
func NewPaymentNotifyJob(payments PaymentReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *PaymentNotifyJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentNotifyJob{Payments: payments, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPaymentNotify tasks.
func (j *PaymentNotifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Payments == nil {
		return errors.New("payment notify: handler not configured")
	}
	var event billing.PaymentEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil || event.PaymentID == 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskPaymentNotify)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger.With(
		slog.String("job", TaskPaymentNotify),
		slog.Int64("payment_id", event.PaymentID),
		slog.String("state", string(event.State)))

	current, err := j.Payments.GetPayment(ctx, shared.SystemActor(), event.PaymentID)
	if errors.Is(err, shared.ErrNotFound) {
		logger.Warn("payment vanished before notification")
		return asynq.SkipRetry
	}
	if err != nil {
		return err
	}
	if current.Status != event.State {
		logger.Info("stale payment notification skipped", slog.String("current_state", string(current.Status)))
		return nil
	}

	logger.Info("customer payment notification",
		slog.Int64("customer_id", event.CustomerID),
		slog.String("invoice_number", event.InvoiceNumber),
		slog.String("amount", event.Amount),
		slog.String("reason", event.Reason))
	j.Metrics.AddItems(TaskPaymentNotify, 1)
	return nil
}
