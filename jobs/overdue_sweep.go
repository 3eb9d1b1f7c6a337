package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gemvault/gemvault/internal/billing"
	jobmetrics "github.com/gemvault/gemvault/internal/jobs"
)

// Sweeper marks overdue schedule rows.
type Sweeper interface {
	SweepOverdue(ctx context.Context, today time.Time) (billing.SweepResult, error)
}

// OverdueSweepJob runs the daily overdue sweep.
type OverdueSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueSweepJob initialises the overdue sweep handler.
func NewOverdueSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload OverdueSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	today, err := payload.Date(j.clock())
	if err != nil {
		j.Logger.Warn("overdue sweep payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskOverdueSweep)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger.With(slog.String("job", TaskOverdueSweep), slog.String("as_of", today.Format("2006-01-02")))
	result, err := j.Sweeper.SweepOverdue(ctx, today)
	if err != nil {
		logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddItems(TaskOverdueSweep, result.SchedulesMarked)
	logger.Info("overdue sweep finished",
		slog.Int("schedules_marked", result.SchedulesMarked),
		slog.Int("invoices_refreshed", result.InvoicesRefreshed))
	return nil
}
