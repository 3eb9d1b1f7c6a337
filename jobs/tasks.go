package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gemvault/gemvault/internal/billing"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries customer-facing notifications.
	QueueCritical = "critical"

	// TaskOverdueSweep marks past-due schedule rows and refreshes invoices.
	TaskOverdueSweep = "billing:overdue_sweep"
	// TaskPaymentNotify tells a customer about a payment state change.
	TaskPaymentNotify = "billing:payment_notify"
)

// TaskTypes lists the task types the worker serves.
func TaskTypes() []string {
	return []string{TaskOverdueSweep, TaskPaymentNotify}
}

// OverdueSweepPayload pins the sweep date. An empty AsOf means today in UTC.
type OverdueSweepPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// Date resolves the sweep date.
func (p OverdueSweepPayload) Date(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return now.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", p.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of %q: %w", p.AsOf, err)
	}
	return t, nil
}

// NewOverdueSweepTask constructs an overdue sweep task.
func NewOverdueSweepTask(payload OverdueSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueSweep, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// NewPaymentNotifyTask constructs a payment notification task.
func NewPaymentNotifyTask(event billing.PaymentEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentNotify, data, asynq.MaxRetry(5)), nil
}

// NewTask builds a task by type name for manual triggering.
func NewTask(taskType string, payload []byte) (*asynq.Task, error) {
	switch taskType {
	case TaskOverdueSweep:
		var p OverdueSweepPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
		}
		return NewOverdueSweepTask(p)
	case TaskPaymentNotify:
		var e billing.PaymentEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		if e.PaymentID == 0 {
			return nil, fmt.Errorf("%s: payment_id is required", taskType)
		}
		return NewPaymentNotifyTask(e)
	}
	return nil, fmt.Errorf("unknown task type %q", taskType)
}
