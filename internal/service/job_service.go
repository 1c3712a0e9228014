package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/repository"
)

// JobService creates render jobs and reads them back for their owner
type JobService struct {
	jobs repository.JobRepository
}

func NewJobService(jobs repository.JobRepository) *JobService {
	return &JobService{jobs: jobs}
}

// CreateVideoJob validates the template parameters and queues a pending job.
// The worker picks it up on its next poll.
func (s *JobService) CreateVideoJob(ctx context.Context, userID, template string, body []byte) (*model.CreateJobResponse, error) {
	mode, err := model.ParseRenderMode(template)
	if err != nil {
		return nil, err
	}

	data, err := model.BuildJobData(mode, body)
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:      uuid.New().String(),
		UserID:  userID,
		Status:  model.JobStatusPending,
		JobData: data,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	return &model.CreateJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// GetJob returns the job if it belongs to userID
func (s *JobService) GetJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := s.jobs.GetForUser(ctx, jobID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the caller's most recent jobs, newest first
func (s *JobService) ListJobs(ctx context.Context, userID string, limit int) (*model.JobListResponse, error) {
	jobs, err := s.jobs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return &model.JobListResponse{Jobs: jobs}, nil
}
