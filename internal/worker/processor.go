package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsched/api/internal/client"
	"github.com/reelsched/api/internal/metrics"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/render"
	"github.com/reelsched/api/internal/repository"
	"github.com/reelsched/api/internal/telemetry"
)

// Notifier receives live job events. *websocket.Hub implements it.
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, step string)
	BroadcastComplete(jobID, videoURL string)
	BroadcastError(jobID string, code, message string)
}

type nopNotifier struct{}

func (nopNotifier) BroadcastProgress(string, int, model.JobStatus, string) {}
func (nopNotifier) BroadcastComplete(string, string)                       {}
func (nopNotifier) BroadcastError(string, string, string)                  {}

// Processor runs one claimed job through download, render and upload and
// always leaves it completed or failed.
type Processor struct {
	jobs       repository.JobRepository
	fetcher    client.Fetcher
	engine     render.Engine
	storage    client.StorageClient
	notifier   Notifier
	workerID   string
	scratchDir string
	logger     *zerolog.Logger
	now        func() time.Time
}

// NewProcessor creates a processor. notifier may be nil.
func NewProcessor(
	workerID, scratchDir string,
	jobs repository.JobRepository,
	fetcher client.Fetcher,
	engine render.Engine,
	storage client.StorageClient,
	notifier Notifier,
	logger *zerolog.Logger,
) *Processor {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Processor{
		jobs:       jobs,
		fetcher:    fetcher,
		engine:     engine,
		storage:    storage,
		notifier:   notifier,
		workerID:   workerID,
		scratchDir: scratchDir,
		logger:     logger,
		now:        time.Now,
	}
}

// ScratchDir is the job's private working directory.
func (p *Processor) ScratchDir(jobID string) string {
	return filepath.Join(p.scratchDir, "job-"+jobID)
}

// Process executes a job already claimed by this worker. The returned error
// is informational: the job row has been finalized either way.
func (p *Processor) Process(ctx context.Context, job *model.Job) error {
	started := p.now()
	log := p.logger.With().Str("job_id", job.ID).Logger()
	dir := p.ScratchDir(job.ID)

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove scratch dir")
		}
	}()

	p.notifier.BroadcastProgress(job.ID, model.ProgressClaimed, model.JobStatusProcessing, "claimed")
	metrics.IncCheckpoint("claimed")

	mode, key, videoURL, err := p.run(ctx, job, dir, &log)
	if err != nil {
		p.fail(ctx, job, mode, err, &log)
		metrics.ObserveJob(string(model.JobStatusFailed), string(mode), p.now().Sub(started))
		return err
	}

	if err := p.jobs.Complete(ctx, job.ID, p.workerID, videoURL); err != nil {
		log.Error().Err(err).Msg("failed to mark job completed")
		if derr := p.storage.Delete(ctx, key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("failed to remove orphaned render")
		}
		telemetry.CaptureError(err, map[string]string{"job_id": job.ID, "operation": "complete_job"})
		metrics.ObserveJob(string(model.JobStatusFailed), string(mode), p.now().Sub(started))
		return fmt.Errorf("complete job: %w", err)
	}

	p.notifier.BroadcastComplete(job.ID, videoURL)
	metrics.IncCheckpoint("done")
	metrics.ObserveJob(string(model.JobStatusCompleted), string(mode), p.now().Sub(started))
	log.Info().Str("video_url", videoURL).Dur("took", p.now().Sub(started)).Msg("render job completed")
	return nil
}

// run never panics outward; a panic becomes the job's error.
func (p *Processor) run(ctx context.Context, job *model.Job, dir string, log *zerolog.Logger) (mode model.RenderMode, key, videoURL string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()

	payload, err := model.DecodeRenderPayload(job.JobData)
	if err != nil {
		return "", "", "", err
	}
	mode = payload.Mode
	plan := payload.Params.Plan()
	log.Info().Str("mode", string(mode)).Int("clips", len(plan.Clips)).Msg("render job started")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mode, "", "", fmt.Errorf("create scratch dir: %w", err)
	}

	// download
	inputs := make([]string, len(plan.Clips))
	for i, clip := range plan.Clips {
		inputs[i] = filepath.Join(dir, fmt.Sprintf("input-%03d%s", i, inputExt(clip.URL, clip.Kind)))
		if _, err := p.fetcher.Download(ctx, clip.URL, inputs[i]); err != nil {
			return mode, "", "", err
		}
	}
	var audio string
	if plan.MusicURL != "" {
		audio = filepath.Join(dir, "music"+extOr(plan.MusicURL, ".mp3"))
		if _, err := p.fetcher.Download(ctx, plan.MusicURL, audio); err != nil {
			return mode, "", "", err
		}
	}
	if err := p.checkpoint(ctx, job.ID, model.ProgressDownloaded, "inputs downloaded", log); err != nil {
		return mode, "", "", err
	}

	// normalize + concat
	clips := make([]string, len(plan.Clips))
	for i, clip := range plan.Clips {
		clips[i] = filepath.Join(dir, fmt.Sprintf("clip-%03d.mp4", i))
		if clip.Kind == model.ClipImage {
			err = p.engine.NormalizeImage(ctx, inputs[i], clips[i], clip.Duration)
		} else {
			err = p.engine.NormalizeVideo(ctx, inputs[i], clips[i])
		}
		if err != nil {
			return mode, "", "", err
		}
	}
	output := filepath.Join(dir, "assembled.mp4")
	if err := p.engine.Concat(ctx, clips, output); err != nil {
		return mode, "", "", err
	}
	if err := p.checkpoint(ctx, job.ID, model.ProgressAssembled, "clips assembled", log); err != nil {
		return mode, "", "", err
	}

	// audio
	if audio != "" {
		mixed := filepath.Join(dir, "final.mp4")
		if err := p.engine.MuxAudio(ctx, output, audio, mixed); err != nil {
			return mode, "", "", err
		}
		output = mixed
	}
	if err := p.checkpoint(ctx, job.ID, model.ProgressMixed, "audio mixed", log); err != nil {
		return mode, "", "", err
	}

	key = RenderKey(p.now(), job.ID)
	videoURL, err = p.upload(ctx, key, output)
	if err != nil {
		return mode, "", "", err
	}
	return mode, key, videoURL, nil
}

func (p *Processor) upload(ctx context.Context, key, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open render output: %w", err)
	}
	defer f.Close()

	url, err := p.storage.Upload(ctx, key, f, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("upload render: %w", err)
	}
	if url == "" {
		return "", errors.New("upload render: storage returned an empty url")
	}
	return url, nil
}

// RenderKey namespaces outputs by date, time and job id.
func RenderKey(now time.Time, jobID string) string {
	now = now.UTC()
	return fmt.Sprintf("renders/%s/%d-%s.mp4", now.Format("2006/01/02"), now.UnixMilli(), jobID)
}

// checkpoint records progress. Only a lost claim stops the job; other store
// errors are logged and the render carries on.
func (p *Processor) checkpoint(ctx context.Context, jobID string, progress int, step string, log *zerolog.Logger) error {
	if err := p.jobs.UpdateProgress(ctx, jobID, p.workerID, progress); err != nil {
		if errors.Is(err, repository.ErrJobNotOwned) {
			return err
		}
		log.Warn().Err(err).Int("progress", progress).Msg("failed to update progress")
	}
	p.notifier.BroadcastProgress(jobID, progress, model.JobStatusProcessing, step)
	metrics.IncCheckpoint(strings.ReplaceAll(step, " ", "_"))
	return nil
}

func (p *Processor) fail(ctx context.Context, job *model.Job, mode model.RenderMode, cause error, log *zerolog.Logger) {
	msg := strings.TrimSpace(cause.Error())
	if msg == "" {
		msg = "render failed"
	}
	code := errorCode(cause)

	log.Error().Err(cause).Str("code", code).Str("mode", string(mode)).Msg("render job failed")

	if err := p.jobs.Fail(ctx, job.ID, p.workerID, msg); err != nil {
		log.Error().Err(err).Msg("failed to mark job failed")
		telemetry.CaptureError(err, map[string]string{"job_id": job.ID, "operation": "fail_job"})
	}
	if code == "INTERNAL_ERROR" || code == "RENDER_FAILED" {
		telemetry.CaptureError(cause, map[string]string{"job_id": job.ID, "mode": string(mode)})
	}
	p.notifier.BroadcastError(job.ID, code, msg)
}

func errorCode(err error) string {
	var engErr *render.EngineError
	switch {
	case errors.Is(err, client.ErrDownloadFailed):
		return "DOWNLOAD_FAILED"
	case errors.Is(err, model.ErrUnsupportedMode):
		return "UNSUPPORTED_MODE"
	case errors.Is(err, model.ErrInvalidPayload):
		return "INVALID_PAYLOAD"
	case errors.Is(err, repository.ErrJobNotOwned):
		return "CLAIM_LOST"
	case errors.As(err, &engErr):
		return "RENDER_FAILED"
	case strings.HasPrefix(err.Error(), "upload render"):
		return "UPLOAD_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}

func inputExt(rawURL string, kind model.ClipKind) string {
	if kind == model.ClipVideo {
		return extOr(rawURL, ".mp4")
	}
	return extOr(rawURL, ".jpg")
}

func extOr(rawURL, def string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	ext := strings.ToLower(path.Ext(u))
	if ext == "" || len(ext) > 5 {
		return def
	}
	return ext
}
