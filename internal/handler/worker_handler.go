package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/reelsched/api/internal/worker"
)

// StatsSource is the running poller, if any
type StatsSource interface {
	Stats() worker.Stats
	Uptime() time.Duration
}

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Collaborators lists which optional backends this process was started with
type Collaborators struct {
	Storage    bool `json:"storage"`
	Redis      bool `json:"redis"`
	PostBridge bool `json:"postbridge"`
	Sentry     bool `json:"sentry"`
}

type WorkerHandler struct {
	stats         StatsSource
	db            Pinger
	collaborators Collaborators
	startedAt     time.Time
}

// NewWorkerHandler builds the ops handler. stats is nil when this process
// runs no poller.
func NewWorkerHandler(stats StatsSource, db Pinger, collaborators Collaborators) *WorkerHandler {
	return &WorkerHandler{stats: stats, db: db, collaborators: collaborators, startedAt: time.Now()}
}

// Health handles GET /health
func (h *WorkerHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK

	dbOK := true
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			dbOK = false
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}

	body := fiber.Map{
		"status":         status,
		"database":       dbOK,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"collaborators":  h.collaborators,
		"worker_enabled": h.stats != nil,
	}
	if h.stats != nil {
		body["worker_id"] = h.stats.Stats().WorkerID
		body["uptime_seconds"] = int64(h.stats.Uptime().Seconds())
	}
	return c.Status(code).JSON(body)
}

// Stats handles GET /worker/stats
func (h *WorkerHandler) Stats(c *fiber.Ctx) error {
	if h.stats == nil {
		return fiber.NewError(fiber.StatusNotFound, "Worker is not running in this process")
	}
	return c.JSON(h.stats.Stats())
}
