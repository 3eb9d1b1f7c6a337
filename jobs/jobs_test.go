package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gemvault/gemvault/internal/billing"
	jobmetrics "github.com/gemvault/gemvault/internal/jobs"
	"github.com/gemvault/gemvault/internal/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSweeper struct {
	got    time.Time
	result billing.SweepResult
	err    error
}

func (f *fakeSweeper) SweepOverdue(ctx context.Context, today time.Time) (billing.SweepResult, error) {
	f.got = today
	return f.result, f.err
}

func TestOverdueSweepUsesPayloadDate(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	sweeper := &fakeSweeper{result: billing.SweepResult{SchedulesMarked: 3, InvoicesRefreshed: 2}}
	job := NewOverdueSweepJob(sweeper, quietLogger(), metrics)

	task, err := NewOverdueSweepTask(OverdueSweepPayload{AsOf: "2024-05-01"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, "2024-05-01", sweeper.got.Format("2006-01-02"))
	require.Equal(t, 1, testutil.CollectAndCount(reg, "gemvault_jobs_total"))
	require.Equal(t, 1, testutil.CollectAndCount(reg, "gemvault_job_items_total"))
}

func TestOverdueSweepDefaultsToClock(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := NewOverdueSweepJob(sweeper, quietLogger(), nil)
	job.clock = func() time.Time { return time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC) }

	task, err := NewOverdueSweepTask(OverdueSweepPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 15, sweeper.got.Day())
}

func TestOverdueSweepBadDateSkipsRetry(t *testing.T) {
	job := NewOverdueSweepJob(&fakeSweeper{}, quietLogger(), nil)
	task := asynq.NewTask(TaskOverdueSweep, []byte(`{"as_of":"yesterday"}`))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestOverdueSweepPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewOverdueSweepJob(&fakeSweeper{err: boom}, quietLogger(), nil)
	task, err := NewOverdueSweepTask(OverdueSweepPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func itemsTotal(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != "gemvault_job_items_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

type fakePayments map[int64]billing.Payment

func (f fakePayments) GetPayment(ctx context.Context, actor shared.Actor, id int64) (billing.Payment, error) {
	if !actor.IsStaff() {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	p, ok := f[id]
	if !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return p, nil
}

func notifyTask(t *testing.T, event billing.PaymentEvent) *asynq.Task {
	t.Helper()
	task, err := NewPaymentNotifyTask(event)
	require.NoError(t, err)
	return task
}

func TestPaymentNotify(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	payments := fakePayments{
		10: {ID: 10, Status: billing.PaymentConfirmed},
		11: {ID: 11, Status: billing.PaymentRejected},
	}
	job := NewPaymentNotifyJob(payments, quietLogger(), metrics)
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, notifyTask(t, billing.PaymentEvent{PaymentID: 10, State: billing.PaymentConfirmed})))
	require.Equal(t, float64(1), itemsTotal(t, reg))

	// the payment moved on since the event was queued
	require.NoError(t, job.Handle(ctx, notifyTask(t, billing.PaymentEvent{PaymentID: 11, State: billing.PaymentApproved})))
	require.Equal(t, float64(1), itemsTotal(t, reg))

	err := job.Handle(ctx, notifyTask(t, billing.PaymentEvent{PaymentID: 99, State: billing.PaymentApproved}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(ctx, asynq.NewTask(TaskPaymentNotify, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewTaskByName(t *testing.T) {
	task, err := NewTask(TaskOverdueSweep, nil)
	require.NoError(t, err)
	require.Equal(t, TaskOverdueSweep, task.Type())

	_, err = NewTask(TaskPaymentNotify, []byte(`{"state":"approved"}`))
	require.Error(t, err)

	task, err = NewTask(TaskPaymentNotify, []byte(`{"payment_id":4,"state":"approved"}`))
	require.NoError(t, err)
	var event billing.PaymentEvent
	require.NoError(t, json.Unmarshal(task.Payload(), &event))
	require.Equal(t, int64(4), event.PaymentID)

	_, err = NewTask("billing:unknown", nil)
	require.Error(t, err)
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientNotifyPaymentEnqueuesCritical(t *testing.T) {
	enq := &recordingEnqueuer{}
	var notifier billing.Notifier = NewClientWith(enq)

	err := notifier.NotifyPayment(context.Background(), billing.PaymentEvent{PaymentID: 7, State: billing.PaymentApproved, Amount: "300.00"})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskPaymentNotify, enq.tasks[0].Type())
	require.Contains(t, enq.opts[0], asynq.Queue(QueueCritical))
}

type fakeInspector map[string]*asynq.QueueInfo

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsQueues(t *testing.T) {
	inspector := fakeInspector{QueueCritical: {Queue: QueueCritical, Pending: 2, Failed: 1}}
	r := chi.NewRouter()
	NewHandler(inspector, quietLogger()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Queues []QueueStats `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []QueueStats{
		{Queue: QueueCritical, Pending: 2, Failed: 1},
		{Queue: QueueDefault},
	}, body.Queues)
}
