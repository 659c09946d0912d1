package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPurge removes audit entries past the retention window.
	TaskAuditPurge = "audit:purge"
	// TaskReportsWarmup precomputes the cached dashboard and reports.
	TaskReportsWarmup = "reports:warmup"
)

// AuditPurgePayload configures an audit purge run. Zero RetentionDays uses
// the worker default.
type AuditPurgePayload struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// ReportsWarmupPayload is reserved for future scoping; it carries no fields yet.
type ReportsWarmupPayload struct{}

// NewAuditPurgeTask builds the task enqueued by the scheduler and the CLI.
func NewAuditPurgeTask(payload AuditPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewReportsWarmupTask builds a reports warmup task.
func NewReportsWarmupTask() (*asynq.Task, error) {
	data, err := json.Marshal(ReportsWarmupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
