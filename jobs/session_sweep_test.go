package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/carecoord/authcore/internal/jobs"
	"github.com/carecoord/authcore/internal/session"
	"github.com/carecoord/authcore/jobs"
)

type failingSweeper struct{}

func (failingSweeper) SweepExpired(context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestSessionSweepRemovesExpiredRecords(t *testing.T) {
	now := time.Now().UTC()
	repo := session.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, session.Session{ID: "s1", IdentityID: "u1", DeviceID: "old", TokenHash: "h1", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, repo.Upsert(ctx, session.Session{ID: "s2", IdentityID: "u1", DeviceID: "new", TokenHash: "h2", ExpiresAt: now.Add(time.Hour)}))

	registry := session.NewRegistry(repo, nil, nil, session.Config{Now: func() time.Time { return now }})
	reg := prometheus.NewRegistry()
	job := jobs.NewSessionSweepJob(registry, nil, jobmetrics.NewMetrics(reg))

	task, err := jobs.NewSessionSweepTask(jobs.SessionSweepPayload{})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskSessionSweep, task.Type())
	require.NoError(t, job.Handle(ctx, task))

	remaining, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].DeviceID)

	values := counterTotals(t, reg)
	assert.Equal(t, float64(1), values["authcore_sessions_swept_total"])
	assert.Equal(t, float64(1), values["authcore_jobs_total"])
}

func TestSessionSweepFailureIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := jobs.NewSessionSweepJob(failingSweeper{}, nil, jobmetrics.NewMetrics(reg))
	task, err := jobs.NewSessionSweepTask(jobs.SessionSweepPayload{Reason: "manual"})
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
	values := counterTotals(t, reg)
	assert.Equal(t, float64(1), values["authcore_jobs_failures_total"])
	assert.Zero(t, values["authcore_sessions_swept_total"])
}

func counterTotals(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	return values
}

func TestSessionSweepRejectsBadPayload(t *testing.T) {
	job := jobs.NewSessionSweepJob(failingSweeper{}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskSessionSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestUnconfiguredSweepFails(t *testing.T) {
	var job *jobs.SessionSweepJob
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskSessionSweep, nil)))
}

func TestNewWorkerRejectsInvalidCron(t *testing.T) {
	task, err := jobs.NewSessionSweepTask(jobs.SessionSweepPayload{})
	require.NoError(t, err)
	_, err = jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []jobs.CronRegistration{{Spec: "every now and then", Task: task}},
	})
	require.Error(t, err)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func queueHealth(t *testing.T, inspector jobs.QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", jobs.NewHandler(inspector, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestJobsHealthReportsQueue(t *testing.T) {
	rec := queueHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 4}})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "default", body["queue"])
	assert.Equal(t, float64(4), body["pending"])

	rec = queueHealth(t, stubInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
