package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsched/api/internal/metrics"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/repository"
)

// JobProcessor runs one claimed job to a terminal state.
type JobProcessor interface {
	Process(ctx context.Context, job *model.Job) error
}

// Stats is the cumulative view exposed on /worker/stats
type Stats struct {
	WorkerID  string     `json:"worker_id"`
	Processed int64      `json:"processed"`
	Failed    int64      `json:"failed"`
	LastJobAt *time.Time `json:"last_job_at"`
	Busy      bool       `json:"busy"`
	StartedAt time.Time  `json:"started_at"`
}

// Poller claims at most one pending job at a time on a fixed interval.
// Ticks that arrive while a job is running are no-ops.
type Poller struct {
	jobs      repository.JobRepository
	processor JobProcessor
	workerID  string
	interval  time.Duration
	logger    *zerolog.Logger

	busy      atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64

	mu        sync.RWMutex
	lastJobAt *time.Time
	startedAt time.Time

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewPoller(workerID string, interval time.Duration, jobs repository.JobRepository, processor JobProcessor, logger *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		jobs:      jobs,
		processor: processor,
		workerID:  workerID,
		interval:  interval,
		logger:    logger,
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}
}

// Start runs the ticker loop until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info().Dur("interval", p.interval).Msg("poller started")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.Tick(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight job to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	p.logger.Info().Msg("poller stopped")
}

// Tick looks for the oldest pending job and hands it off. It reports whether
// a job was claimed.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.busy.CompareAndSwap(false, true) {
		metrics.IncPollTick("busy")
		return false
	}

	job, err := p.jobs.FindNextPending(ctx)
	if err != nil {
		p.busy.Store(false)
		metrics.IncPollTick("error")
		p.logger.Warn().Err(err).Msg("pending job query failed, skipping tick")
		return false
	}
	if job == nil {
		p.busy.Store(false)
		metrics.IncPollTick("idle")
		return false
	}

	claimed, err := p.jobs.Claim(ctx, job.ID, p.workerID)
	if err != nil {
		p.busy.Store(false)
		if errors.Is(err, repository.ErrJobNotClaimable) {
			metrics.IncPollTick("lost")
			p.logger.Debug().Str("job_id", job.ID).Msg("job claimed by another worker")
		} else {
			metrics.IncPollTick("error")
			p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("claim failed, skipping tick")
			p.releaseUnconfirmedClaim(ctx, job.ID, err)
		}
		return false
	}
	metrics.IncPollTick("claimed")

	// shutdown must not cancel a render halfway
	jobCtx := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)

		err := p.processor.Process(jobCtx, claimed)
		if err != nil {
			p.failed.Add(1)
		} else {
			p.processed.Add(1)
		}

		now := time.Now()
		p.mu.Lock()
		p.lastJobAt = &now
		p.mu.Unlock()
	}()
	return true
}

// releaseUnconfirmedClaim fails a job this worker may hold after a claim error
// whose outcome is unknown. Fail only matches rows claimed by this worker, so it
// is a no-op when the claim never landed.
func (p *Poller) releaseUnconfirmedClaim(ctx context.Context, jobID string, cause error) {
	err := p.jobs.Fail(context.WithoutCancel(ctx), jobID, p.workerID, "claim could not be confirmed: "+cause.Error())
	switch {
	case err == nil:
		p.failed.Add(1)
		p.logger.Warn().Str("job_id", jobID).Msg("released job after unconfirmed claim")
	case errors.Is(err, repository.ErrJobNotOwned):
	default:
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("could not release job after unconfirmed claim")
	}
}

func (p *Poller) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		WorkerID:  p.workerID,
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		LastJobAt: p.lastJobAt,
		Busy:      p.busy.Load(),
		StartedAt: p.startedAt,
	}
}

func (p *Poller) WorkerID() string {
	return p.workerID
}

func (p *Poller) Uptime() time.Duration {
	return time.Since(p.startedAt)
}
