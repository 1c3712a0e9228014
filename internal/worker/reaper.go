package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/reelsched/api/internal/repository"
)

// TaskTypeRequeueStale is the periodic task that recovers jobs orphaned by a
// crashed worker.
const TaskTypeRequeueStale = "jobs:requeue_stale"

// Reaper puts processing jobs whose worker went away back to pending.
type Reaper struct {
	jobs       repository.JobRepository
	staleAfter time.Duration
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewReaper(jobs repository.JobRepository, staleAfter time.Duration, logger *zerolog.Logger) *Reaper {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Hour
	}
	return &Reaper{
		jobs:       jobs,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep requeues jobs started more than staleAfter ago.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.jobs.RequeueStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn().Int64("count", n).Dur("stale_after", r.staleAfter).Msg("requeued stale jobs")
	}
	return n, nil
}

// ProcessTask handles the asynq periodic task
func (r *Reaper) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if _, err := r.Sweep(ctx); err != nil {
		return fmt.Errorf("requeue stale jobs: %w", err)
	}
	return nil
}

// ReaperRunner owns the asynq scheduler and server driving the reaper.
type ReaperRunner struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
}

// StartReaper registers the periodic task and starts processing it.
func StartReaper(redisOpt asynq.RedisClientOpt, reaper *Reaper, every time.Duration, logLevel asynq.LogLevel) (*ReaperRunner, error) {
	if every <= 0 {
		every = 5 * time.Minute
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{LogLevel: logLevel})
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", every),
		asynq.NewTask(TaskTypeRequeueStale, nil),
		asynq.Queue("maintenance"),
		asynq.MaxRetry(0),
		asynq.Unique(every),
	); err != nil {
		return nil, fmt.Errorf("register reaper task: %w", err)
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"maintenance": 1},
		LogLevel:    logLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRequeueStale, reaper.ProcessTask)

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start reaper scheduler: %w", err)
	}
	if err := srv.Start(mux); err != nil {
		scheduler.Shutdown()
		return nil, fmt.Errorf("start reaper server: %w", err)
	}

	return &ReaperRunner{scheduler: scheduler, server: srv}, nil
}

func (r *ReaperRunner) Shutdown() {
	r.scheduler.Shutdown()
	r.server.Shutdown()
}

// AsynqLogLevel maps the app log level onto asynq's.
func AsynqLogLevel(level string) asynq.LogLevel {
	switch level {
	case "debug", "trace":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
