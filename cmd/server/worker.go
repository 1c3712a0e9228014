package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/reelsched/api/internal/handler"
	"github.com/reelsched/api/internal/server"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the polling worker with health and stats endpoints",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.startWorker(ctx); err != nil {
		return err
	}

	app := server.NewApp(server.Deps{
		Config: cfg,
		Logger: logger,
		Ops:    handler.NewWorkerHandler(d.poller, d.db, collaborators(d)),
	})
	return listen(ctx, app)
}

// listen serves until ctx is cancelled, then drains connections
func listen(ctx context.Context, app *fiber.App) error {
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("server starting")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}
