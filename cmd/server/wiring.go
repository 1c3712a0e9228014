package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/reelsched/api/internal/auth"
	"github.com/reelsched/api/internal/client"
	"github.com/reelsched/api/internal/db"
	"github.com/reelsched/api/internal/logging"
	"github.com/reelsched/api/internal/metrics"
	"github.com/reelsched/api/internal/render"
	"github.com/reelsched/api/internal/repository"
	"github.com/reelsched/api/internal/telemetry"
	ws "github.com/reelsched/api/internal/websocket"
	"github.com/reelsched/api/internal/worker"
)

// deps are the long-lived collaborators both subcommands share
type deps struct {
	db      *sql.DB
	jobs    repository.JobRepository
	storage client.StorageClient
	redis   *redis.Client
	sentry  bool
	hub     *ws.Hub
	poller  *worker.Poller
	reaper  *worker.ReaperRunner
}

func openDeps(ctx context.Context) (*deps, error) {
	d := &deps{}

	enabled, err := telemetry.InitSentry(cfg.Sentry.DSN, cfg.Server.Env, version)
	if err != nil {
		logger.Warn().Err(err).Msg("sentry init failed")
	}
	d.sentry = enabled

	metrics.MustRegister()

	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	d.db = conn
	d.jobs = repository.NewSQLJobRepo(conn)

	if cfg.StorageConfigured() {
		r2, err := client.NewR2Client(ctx, &cfg.R2)
		if err != nil {
			conn.Close()
			return nil, err
		}
		d.storage = r2
	} else {
		logger.Warn().Msg("R2 not configured: uploads disabled, worker will not start")
	}

	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis not available")
		}
	}

	d.hub = ws.NewHub(logger)
	go d.hub.Run(ctx)
	go reportPoolStats(ctx, conn)

	return d, nil
}

// startWorker starts the poller and, with Redis, the stale job reaper
func (d *deps) startWorker(ctx context.Context) error {
	if d.storage == nil {
		return fmt.Errorf("worker needs R2 storage to upload renders")
	}

	wlog := logging.ForWorker(logger, cfg.Worker.ID)
	fetcher := client.NewHTTPFetcher(time.Duration(cfg.Worker.FetchTimeout) * time.Second)
	engine := render.NewFFmpeg(cfg.Render)
	processor := worker.NewProcessor(cfg.Worker.ID, cfg.Worker.ScratchDir, d.jobs, fetcher, engine, d.storage, d.hub, wlog)

	d.poller = worker.NewPoller(cfg.Worker.ID, cfg.Worker.PollInterval, d.jobs, processor, wlog)
	d.poller.Start(ctx)

	if cfg.Redis.Addr != "" {
		reaper := worker.NewReaper(d.jobs, cfg.Worker.StaleAfter, wlog)
		runner, err := worker.StartReaper(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, reaper, cfg.Worker.ReapInterval, worker.AsynqLogLevel(cfg.Log.Level))
		if err != nil {
			wlog.Warn().Err(err).Msg("stale job reaper not started")
		} else {
			d.reaper = runner
		}
	}

	wlog.Info().Dur("poll_interval", cfg.Worker.PollInterval).Msg("worker started")
	return nil
}

func (d *deps) verifier(ctx context.Context) auth.TokenVerifier {
	var chain auth.Chain
	if cfg.OIDC.Issuer != "" {
		jwks, err := auth.NewJWKSVerifier(ctx, &cfg.OIDC)
		if err != nil {
			logger.Warn().Err(err).Msg("OIDC verifier unavailable, falling back to HMAC tokens")
		} else {
			chain = append(chain, jwks)
		}
	}
	if cfg.JWT.Secret != "" {
		chain = append(chain, auth.NewHMACVerifier(cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Hour))
	}
	return chain
}

// close stops the worker first so the in-flight job can still write its result
func (d *deps) close() {
	if d.reaper != nil {
		d.reaper.Shutdown()
	}
	if d.poller != nil {
		d.poller.Stop()
	}
	if d.redis != nil {
		d.redis.Close()
	}
	d.db.Close()
	telemetry.Flush()
}

func reportPoolStats(ctx context.Context, conn *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetDBPoolStats(conn.Stats())
		}
	}
}
