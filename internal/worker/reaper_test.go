package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsched/api/internal/logging"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/repository"
)

func TestReaper_RequeuesOnlyStaleJobs(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLJobRepo(openDB(t))

	job := &model.Job{ID: uuid.New().String(), UserID: "u", JobData: []byte(`{}`)}
	require.NoError(t, repo.Create(ctx, job))
	_, err := repo.Claim(ctx, job.ID, "gone")
	require.NoError(t, err)

	reaper := NewReaper(repo, time.Hour, logging.Nop())

	n, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a fresh claim is not stale")

	reaper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, reaper.ProcessTask(ctx, asynq.NewTask(TaskTypeRequeueStale, nil)))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
}

func TestAsynqLogLevel(t *testing.T) {
	assert.Equal(t, asynq.DebugLevel, AsynqLogLevel("debug"))
	assert.Equal(t, asynq.WarnLevel, AsynqLogLevel("warn"))
	assert.Equal(t, asynq.InfoLevel, AsynqLogLevel("info"))
}
