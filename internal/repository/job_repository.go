package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reelsched/api/internal/model"
)

// JobRepository is the job store. Every mutation after Claim is conditioned on
// the claiming worker still holding the job in processing.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	GetForUser(ctx context.Context, id, userID string) (*model.Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Job, error)

	// FindNextPending returns the oldest pending job, or nil when the queue is empty.
	FindNextPending(ctx context.Context) (*model.Job, error)
	Claim(ctx context.Context, id, workerID string) (*model.Job, error)
	UpdateProgress(ctx context.Context, id, workerID string, progress int) error
	Complete(ctx context.Context, id, workerID, videoURL string) error
	Fail(ctx context.Context, id, workerID, message string) error

	// RequeueStale puts processing jobs started before staleBefore back to pending.
	RequeueStale(ctx context.Context, staleBefore time.Time) (int64, error)
}

// SQLJobRepo implements JobRepository on database/sql. Queries use $n
// placeholders, which both the pgx and sqlite3 drivers accept.
type SQLJobRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLJobRepo(db *sql.DB) *SQLJobRepo {
	return &SQLJobRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const jobColumns = `id, user_id, status, progress, job_data, video_url, error_message,
	claimed_by, created_at, started_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job                         model.Job
		status                      string
		data                        []byte
		videoURL, errMsg, claimedBy sql.NullString
		startedAt, completedAt      sql.NullTime
	)
	if err := row.Scan(
		&job.ID, &job.UserID, &status, &job.Progress, &data, &videoURL, &errMsg,
		&claimedBy, &job.CreatedAt, &startedAt, &job.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.JobData = append([]byte(nil), data...)
	job.VideoURL = nullString(videoURL)
	job.ErrorMessage = nullString(errMsg)
	job.ClaimedBy = nullString(claimedBy)
	job.StartedAt = nullTime(startedAt)
	job.CompletedAt = nullTime(completedAt)
	return &job, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func (r *SQLJobRepo) Create(ctx context.Context, job *model.Job) error {
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO video_jobs (id, user_id, status, progress, job_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.UserID, string(job.Status), job.Progress, string(job.JobData), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *SQLJobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *SQLJobRepo) GetForUser(ctx context.Context, id, userID string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM video_jobs WHERE id = $1 AND user_id = $2`, id, userID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *SQLJobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM video_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *SQLJobRepo) FindNextPending(ctx context.Context) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM video_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT 1`)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending job: %w", err)
	}
	return job, nil
}

// Claim moves a pending job to processing and returns the claimed row in the
// same statement. No row means another worker got there first.
func (r *SQLJobRepo) Claim(ctx context.Context, id, workerID string) (*model.Job, error) {
	now := r.now()
	row := r.db.QueryRowContext(ctx, `
		UPDATE video_jobs
		SET status = 'processing', progress = $1, claimed_by = $2, started_at = $3, updated_at = $4
		WHERE id = $5 AND status = 'pending'
		RETURNING `+jobColumns,
		model.ProgressClaimed, workerID, now, now, id,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotClaimable
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// UpdateProgress never lowers the stored value.
func (r *SQLJobRepo) UpdateProgress(ctx context.Context, id, workerID string, progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress %d out of range", progress)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET progress = CASE WHEN progress < $1 THEN $1 ELSE progress END, updated_at = $2
		WHERE id = $3 AND claimed_by = $4 AND status = 'processing'`,
		progress, r.now(), id, workerID,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return expectOne(res, ErrJobNotOwned)
}

func (r *SQLJobRepo) Complete(ctx context.Context, id, workerID, videoURL string) error {
	if strings.TrimSpace(videoURL) == "" {
		return fmt.Errorf("complete job %s: empty video url", id)
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET status = 'completed', progress = $1, video_url = $2, error_message = NULL,
			completed_at = $3, updated_at = $4
		WHERE id = $5 AND claimed_by = $6 AND status = 'processing'`,
		model.ProgressDone, videoURL, now, now, id, workerID,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOne(res, ErrJobNotOwned)
}

func (r *SQLJobRepo) Fail(ctx context.Context, id, workerID, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "job failed"
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET status = 'failed', error_message = $1, video_url = NULL,
			completed_at = $2, updated_at = $3
		WHERE id = $4 AND claimed_by = $5 AND status = 'processing'`,
		message, now, now, id, workerID,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOne(res, ErrJobNotOwned)
}

func (r *SQLJobRepo) RequeueStale(ctx context.Context, staleBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET status = 'pending', progress = 0, claimed_by = NULL, started_at = NULL, updated_at = $1
		WHERE status = 'processing' AND started_at < $2`,
		r.now(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}
