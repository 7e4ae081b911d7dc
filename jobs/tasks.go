package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes refresh-token records past their expiry.
	TaskSessionSweep = "session:sweep"
)

// SessionSweepPayload describes one sweep run.
type SessionSweepPayload struct {
	// Reason is informational, e.g. "cron" or "manual".
	Reason string `json:"reason"`
}

// NewSessionSweepTask constructs an Asynq task. Duplicate sweeps enqueued
// within the same minute collapse into one.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	if payload.Reason == "" {
		payload.Reason = "cron"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data, asynq.Unique(time.Minute), asynq.MaxRetry(3)), nil
}
