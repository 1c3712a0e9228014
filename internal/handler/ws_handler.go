package handler

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/reelsched/api/internal/middleware"
	"github.com/reelsched/api/internal/service"
	ws "github.com/reelsched/api/internal/websocket"
	"github.com/reelsched/api/pkg/response"
)

// ProgressHandler streams job progress over a websocket
type ProgressHandler struct {
	jobs *service.JobService
	hub  *ws.Hub
}

func NewProgressHandler(jobs *service.JobService, hub *ws.Hub) *ProgressHandler {
	return &ProgressHandler{jobs: jobs, hub: hub}
}

// Upgrade only lets the job's owner open the stream
func (h *ProgressHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	_, err := h.jobs.GetJob(c.UserContext(), middleware.GetUserID(c), c.Params("jobId"))
	if errors.Is(err, service.ErrJobNotFound) {
		return response.NotFound(c, "Job not found")
	}
	if err != nil {
		return response.ServiceError(c, "Failed to load job")
	}
	return c.Next()
}

// Stream handles GET /ws/jobs/:jobId
func (h *ProgressHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		h.hub.HandleConnection(c, c.Params("jobId"))
	})
}
