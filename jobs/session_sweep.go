package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/carecoord/authcore/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sweeper deletes expired session records.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionSweepJob is the "expiry sweep" of the session store.
type SessionSweepJob struct {
	Sessions Sweeper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSessionSweepJob wires dependencies for the sweep handler.
func NewSessionSweepJob(sessions Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{Sessions: sessions, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SessionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskSessionSweep)
	start := time.Now()
	logger := j.logger().With(slog.String("reason", payload.Reason))

	removed, err := j.Sessions.SweepExpired(ctx)
	if err != nil {
		logger.Error("sweep expired sessions", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddSwept(removed)
	logger.Info("swept expired sessions", slog.Int64("removed", removed), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *SessionSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
