package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/refeitorio/refeitorio/internal/audit"
	jobmetrics "github.com/refeitorio/refeitorio/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Purger deletes audit entries older than a number of days.
type Purger interface {
	Purge(ctx context.Context, days int) (int64, error)
}

// AuditPurgeJob enforces the audit retention window.
type AuditPurgeJob struct {
	Audit         Purger
	RetentionDays int
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// NewAuditPurgeJob wires dependencies for the purge handler.
func NewAuditPurgeJob(purger Purger, retentionDays int, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPurgeJob {
	return &AuditPurgeJob{Audit: purger, RetentionDays: retentionDays, Logger: logger, Metrics: metrics}
}

// Handle processes audit purge tasks.
func (j *AuditPurgeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Audit == nil {
		return errors.New("audit purge: handler not configured")
	}
	var payload AuditPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	days := payload.RetentionDays
	if days <= 0 {
		days = j.RetentionDays
	}
	if days <= 0 {
		days = audit.DefaultRetentionDays
	}

	tracker := j.metrics().Track(TaskAuditPurge)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("retention_days", days))
	start := time.Now()
	removed, err := j.Audit.Purge(ctx, days)
	if err != nil {
		logger.Error("purge audit log", slog.Any("error", err))
		return err
	}
	j.metrics().AddItems(TaskAuditPurge, int(removed))
	logger.Info("purged audit log", slog.Int64("removed", removed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *AuditPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditPurge))
	}
	return slog.Default().With(slog.String("job", TaskAuditPurge))
}

func (j *AuditPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
