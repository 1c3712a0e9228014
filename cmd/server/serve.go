package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/reelsched/api/internal/client"
	"github.com/reelsched/api/internal/handler"
	"github.com/reelsched/api/internal/middleware"
	"github.com/reelsched/api/internal/repository"
	"github.com/reelsched/api/internal/server"
	"github.com/reelsched/api/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with an in-process worker",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	if cfg.Worker.Enabled {
		if err := d.startWorker(ctx); err != nil {
			logger.Warn().Err(err).Msg("in-process worker disabled")
		}
	}

	fetcher := client.NewHTTPFetcher(time.Duration(cfg.Worker.FetchTimeout) * time.Second)
	planner := service.NewPlanner(cfg.Bulk, time.Now().UnixNano())
	bulk := service.NewBulkService(
		repository.NewSQLCollectionRepo(d.db),
		repository.NewSQLCredentialRepo(d.db),
		client.NewPostBridgeFactory(&cfg.PostBridge, logger),
		fetcher,
		planner,
		cfg.Bulk,
		logger,
	)

	app := server.NewApp(server.Deps{
		Config:      cfg,
		Logger:      logger,
		Verifier:    d.verifier(ctx),
		Validator:   validator.New(),
		RateLimiter: middleware.NewRateLimiter(d.redis, logger),
		Hub:         d.hub,
		Jobs:        service.NewJobService(d.jobs),
		Bulk:        bulk,
		Uploads:     service.NewUploadService(d.storage),
		Ops:         handler.NewWorkerHandler(statsSource(d), d.db, collaborators(d)),
		RequestLog:  true,
	})

	return listen(ctx, app)
}

func collaborators(d *deps) handler.Collaborators {
	return handler.Collaborators{
		Storage:    d.storage != nil,
		Redis:      d.redis != nil,
		PostBridge: cfg.PostBridge.BaseURL != "",
		Sentry:     d.sentry,
	}
}

// statsSource avoids handing the handler a typed nil poller
func statsSource(d *deps) handler.StatsSource {
	if d.poller == nil {
		return nil
	}
	return d.poller
}
