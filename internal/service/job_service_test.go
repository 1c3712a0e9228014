package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/db"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/repository"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, config.DatabaseConfig{Driver: db.DriverSQLite, URL: filepath.Join(t.TempDir(), "svc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = db.Migrate(ctx, conn, db.DriverSQLite)
	require.NoError(t, err)
	return conn
}

func TestCreateVideoJob(t *testing.T) {
	repo := repository.NewSQLJobRepo(openDB(t))
	svc := NewJobService(repo)
	ctx := context.Background()

	resp, err := svc.CreateVideoJob(ctx, "alice", "slideshow",
		[]byte(`{"images":["https://cdn.test/1.jpg","https://cdn.test/2.jpg"],"secondsPerImage":2}`))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, model.JobStatusPending, resp.Status)
	assert.False(t, resp.CreatedAt.IsZero())

	job, err := svc.GetJob(ctx, "alice", resp.JobID)
	require.NoError(t, err)
	assert.Zero(t, job.Progress)

	payload, err := model.DecodeRenderPayload(job.JobData)
	require.NoError(t, err)
	assert.Equal(t, model.ModeSlideshow, payload.Mode)
}

func TestCreateVideoJob_Rejections(t *testing.T) {
	svc := NewJobService(repository.NewSQLJobRepo(openDB(t)))
	ctx := context.Background()

	_, err := svc.CreateVideoJob(ctx, "alice", "karaoke", []byte(`{"images":["https://cdn.test/1.jpg"]}`))
	assert.ErrorIs(t, err, model.ErrUnsupportedMode)

	_, err = svc.CreateVideoJob(ctx, "alice", "slideshow", []byte(`{"images":[]}`))
	assert.ErrorIs(t, err, model.ErrInvalidPayload)

	_, err = svc.CreateVideoJob(ctx, "alice", "tiktok-creative", []byte(`{not json`))
	assert.ErrorIs(t, err, model.ErrInvalidPayload)

	list, err := svc.ListJobs(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, list.Jobs)
}

func TestGetJob_OtherUsersJobIsNotFound(t *testing.T) {
	svc := NewJobService(repository.NewSQLJobRepo(openDB(t)))
	ctx := context.Background()

	resp, err := svc.CreateVideoJob(ctx, "alice", "tiktok-creative",
		[]byte(`{"videos":["https://cdn.test/a.mp4"]}`))
	require.NoError(t, err)

	_, err = svc.GetJob(ctx, "bob", resp.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.GetJob(ctx, "alice", "does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)

	list, err := svc.ListJobs(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, list.Jobs)
}
