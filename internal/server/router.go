package server

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/reelsched/api/internal/auth"
	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/handler"
	"github.com/reelsched/api/internal/metrics"
	"github.com/reelsched/api/internal/middleware"
	"github.com/reelsched/api/internal/service"
	ws "github.com/reelsched/api/internal/websocket"
	"github.com/reelsched/api/pkg/response"
)

const bodyLimit = 210 * 1024 * 1024

// Deps are the wired components the HTTP API serves
type Deps struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Verifier    auth.TokenVerifier
	Validator   *validator.Validate
	RateLimiter *middleware.RateLimiter
	Hub         *ws.Hub

	Jobs    *service.JobService
	Bulk    *service.BulkService
	Uploads *service.UploadService
	Ops     *handler.WorkerHandler

	// RequestLog toggles fiber's access log
	RequestLog bool
}

// NewApp builds the full API. A nil Jobs service leaves only the ops routes.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          response.ErrorHandler,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if d.RequestLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", d.Ops.Health)
	app.Get("/worker/stats", d.Ops.Stats)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if d.Jobs == nil {
		return app
	}

	authenticate := authMiddleware(d)
	rl := d.RateLimiter
	if rl == nil {
		rl = middleware.NewRateLimiter(nil, d.Logger)
	}
	limits := d.Config.RateLimit

	jobs := handler.NewJobHandler(d.Jobs)
	bulk := handler.NewBulkHandler(d.Bulk, d.Validator, d.Logger)
	uploads := handler.NewUploadHandler(d.Uploads)
	progress := handler.NewProgressHandler(d.Jobs, d.Hub)

	api := app.Group("/api", authenticate)

	api.Post("/create-video/:template", rl.CreateVideoLimit(limits.CreateVideoPerHour), jobs.CreateVideo)
	api.Get("/jobs", jobs.List)
	api.Get("/jobs/:jobId", jobs.Get)

	api.Post("/bulk-schedule-bridge", rl.BulkLimit(limits.BulkPerHour), bulk.Schedule)
	api.Delete("/bridge/posts/:postId", bulk.CancelPost)

	api.Post("/upload/media", rl.UploadLimit(limits.UploadPerHour), uploads.Media)

	app.Get("/ws/jobs/:jobId", authenticate, progress.Upgrade, progress.Stream())

	return app
}

func authMiddleware(d Deps) fiber.Handler {
	if d.Config.Gateway.Enabled {
		return middleware.Gateway()
	}
	return middleware.Authenticate(d.Verifier)
}
