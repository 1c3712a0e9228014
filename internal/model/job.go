package model

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a render job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status can no longer change
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress checkpoints reported by the worker
const (
	ProgressClaimed    = 10
	ProgressDownloaded = 40
	ProgressAssembled  = 60
	ProgressMixed      = 80
	ProgressDone       = 100
)

// Job represents a background render job in the system
type Job struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"`
	JobData      json.RawMessage `json:"job_data"`
	VideoURL     *string         `json:"video_url,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ClaimedBy    *string         `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// CreateJobResponse is returned when a render job is queued
type CreateJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobListResponse wraps a page of the caller's jobs
type JobListResponse struct {
	Jobs []*Job `json:"jobs"`
}
