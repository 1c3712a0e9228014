package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/reelsched/api/internal/middleware"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/service"
	"github.com/reelsched/api/pkg/response"
)

const (
	defaultJobListLimit = 20
	maxJobListLimit     = 100
)

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

// CreateVideo handles POST /api/create-video/:template
func (h *JobHandler) CreateVideo(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	result, err := h.service.CreateVideoJob(c.UserContext(), userID, c.Params("template"), c.Body())
	switch {
	case errors.Is(err, model.ErrUnsupportedMode):
		return response.ValidationError(c, "Unknown video template", fiber.Map{"template": c.Params("template")})
	case errors.Is(err, model.ErrInvalidPayload):
		return response.ValidationError(c, err.Error(), nil)
	case err != nil:
		return response.ServiceError(c, "Failed to create job")
	}

	return response.Accepted(c, result)
}

// Get handles GET /api/jobs/:jobId
func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.GetJob(c.UserContext(), middleware.GetUserID(c), c.Params("jobId"))
	if errors.Is(err, service.ErrJobNotFound) {
		return response.NotFound(c, "Job not found")
	}
	if err != nil {
		return response.ServiceError(c, "Failed to load job")
	}
	return response.OK(c, job)
}

// List handles GET /api/jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultJobListLimit)
	if limit <= 0 || limit > maxJobListLimit {
		limit = defaultJobListLimit
	}

	result, err := h.service.ListJobs(c.UserContext(), middleware.GetUserID(c), limit)
	if err != nil {
		return response.ServiceError(c, "Failed to list jobs")
	}
	return response.OK(c, result)
}
