package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/db"
	"github.com/reelsched/api/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, config.DatabaseConfig{
		Driver: db.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = db.Migrate(ctx, conn, db.DriverSQLite)
	require.NoError(t, err)
	return conn
}

func newJob(t *testing.T, repo *SQLJobRepo, userID string, createdAt time.Time) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:        uuid.New().String(),
		UserID:    userID,
		JobData:   []byte(`{"apiEndpoint":"/api/create-video/slideshow","images":["https://cdn.test/a.jpg"]}`),
		CreatedAt: createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()

	job := newJob(t, repo, "user-1", time.Now().UTC())

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.JSONEq(t, string(job.JobData), string(got.JobData))
	assert.Nil(t, got.VideoURL)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.CompletedAt)

	_, err = repo.GetForUser(ctx, job.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepo_FindNextPendingIsOldestFirst(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()

	none, err := repo.FindNextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	base := time.Now().UTC().Add(-time.Hour)
	newer := newJob(t, repo, "u", base.Add(2*time.Minute))
	older := newJob(t, repo, "u", base)

	next, err := repo.FindNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, older.ID, next.ID)

	_, err = repo.Claim(ctx, older.ID, "w1")
	require.NoError(t, err)

	next, err = repo.FindNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, newer.ID, next.ID)
}

func TestJobRepo_ClaimIsExclusive(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()
	job := newJob(t, repo, "u", time.Now().UTC())

	claimed, err := repo.Claim(ctx, job.ID, "w1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, claimed.Status)
	assert.Equal(t, model.ProgressClaimed, claimed.Progress)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, "w1", *claimed.ClaimedBy)
	assert.NotNil(t, claimed.StartedAt)

	_, err = repo.Claim(ctx, job.ID, "w2")
	assert.ErrorIs(t, err, ErrJobNotClaimable)

	_, err = repo.Claim(ctx, "no-such-job", "w2")
	assert.ErrorIs(t, err, ErrJobNotClaimable)

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, claimed, stored, "claim returns the row as stored")

	// the loser has no write rights
	assert.ErrorIs(t, repo.UpdateProgress(ctx, job.ID, "w2", 50), ErrJobNotOwned)
	assert.ErrorIs(t, repo.Complete(ctx, job.ID, "w2", "https://cdn.test/x.mp4"), ErrJobNotOwned)
	assert.ErrorIs(t, repo.Fail(ctx, job.ID, "w2", "nope"), ErrJobNotOwned)
}

func TestJobRepo_ProgressIsMonotonic(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()
	job := newJob(t, repo, "u", time.Now().UTC())
	_, err := repo.Claim(ctx, job.ID, "w1")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateProgress(ctx, job.ID, "w1", 60))
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, "w1", 40))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)

	assert.Error(t, repo.UpdateProgress(ctx, job.ID, "w1", 101))
}

func TestJobRepo_TerminalStatesCarryExactlyOneResult(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()

	ok := newJob(t, repo, "u", time.Now().UTC())
	bad := newJob(t, repo, "u", time.Now().UTC())
	for _, j := range []*model.Job{ok, bad} {
		_, err := repo.Claim(ctx, j.ID, "w1")
		require.NoError(t, err)
	}

	require.Error(t, repo.Complete(ctx, ok.ID, "w1", ""))
	require.NoError(t, repo.Complete(ctx, ok.ID, "w1", "https://cdn.test/renders/ok.mp4"))
	require.NoError(t, repo.Fail(ctx, bad.ID, "w1", "download failed"))

	done, err := repo.GetByID(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.VideoURL)
	assert.NotEmpty(t, *done.VideoURL)
	assert.Nil(t, done.ErrorMessage)
	assert.NotNil(t, done.CompletedAt)

	failed, err := repo.GetByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "download failed", *failed.ErrorMessage)
	assert.Nil(t, failed.VideoURL)
	assert.NotNil(t, failed.CompletedAt)

	// terminal jobs are never revisited
	assert.ErrorIs(t, repo.Fail(ctx, ok.ID, "w1", "late"), ErrJobNotOwned)
	assert.ErrorIs(t, repo.UpdateProgress(ctx, bad.ID, "w1", 100), ErrJobNotOwned)
	_, err = repo.Claim(ctx, bad.ID, "w1")
	assert.ErrorIs(t, err, ErrJobNotClaimable)
}

func TestJobRepo_FailWithBlankMessageStillRecordsOne(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()
	job := newJob(t, repo, "u", time.Now().UTC())
	_, err := repo.Claim(ctx, job.ID, "w1")
	require.NoError(t, err)

	require.NoError(t, repo.Fail(ctx, job.ID, "w1", "  "))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.NotEmpty(t, *got.ErrorMessage)
}

func TestJobRepo_RequeueStale(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()

	clock := time.Now().UTC().Add(-3 * time.Hour)
	repo.now = func() time.Time { return clock }

	stale := newJob(t, repo, "u", clock)
	_, err := repo.Claim(ctx, stale.ID, "crashed-worker")
	require.NoError(t, err)

	clock = time.Now().UTC()
	fresh := newJob(t, repo, "u", clock)
	_, err = repo.Claim(ctx, fresh.ID, "w1")
	require.NoError(t, err)

	n, err := repo.RequeueStale(ctx, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Nil(t, got.ClaimedBy)
	assert.Equal(t, 0, got.Progress)

	// the crashed worker lost its claim
	assert.ErrorIs(t, repo.Complete(ctx, stale.ID, "crashed-worker", "https://x/y.mp4"), ErrJobNotOwned)

	still, err := repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, still.Status)
}

func TestJobRepo_ListByUser(t *testing.T) {
	repo := NewSQLJobRepo(openTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	first := newJob(t, repo, "alice", base)
	second := newJob(t, repo, "alice", base.Add(time.Minute))
	newJob(t, repo, "bob", base)

	jobs, err := repo.ListByUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	empty, err := repo.ListByUser(ctx, "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
