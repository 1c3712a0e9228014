package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/reelsched/api/internal/client"
	"github.com/reelsched/api/internal/middleware"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/service"
	"github.com/reelsched/api/pkg/response"
)

type BulkHandler struct {
	service   *service.BulkService
	validator *validator.Validate
	logger    *zerolog.Logger
}

func NewBulkHandler(svc *service.BulkService, v *validator.Validate, logger *zerolog.Logger) *BulkHandler {
	return &BulkHandler{service: svc, validator: v, logger: logger}
}

// Schedule handles POST /api/bulk-schedule-bridge
func (h *BulkHandler) Schedule(c *fiber.Ctx) error {
	var req model.BulkScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Dispatch(c.UserContext(), middleware.GetUserID(c), &req)
	switch {
	case errors.Is(err, service.ErrDailyLimitExceeded):
		return response.Error(c, fiber.StatusBadRequest, response.CodeDailyLimit, err.Error(), nil)
	case errors.Is(err, service.ErrNoActiveCredential):
		return response.Error(c, fiber.StatusBadRequest, response.CodeNoCredential, "No active Post-bridge API key", nil)
	case errors.Is(err, service.ErrEmptyCollection):
		return response.ValidationError(c, "Collection has no media to post", nil)
	case errors.Is(err, service.ErrInvalidStartDate):
		return response.ValidationError(c, err.Error(), fiber.Map{"startDate": "date"})
	case errors.Is(err, service.ErrCollectionNotFound):
		return response.NotFound(c, "Collection not found")
	case err != nil:
		h.logger.Error().Err(err).Msg("bulk dispatch failed")
		return response.ServiceError(c, "Bulk scheduling failed")
	}

	return response.OK(c, result)
}

// CancelPost handles DELETE /api/bridge/posts/:postId
func (h *BulkHandler) CancelPost(c *fiber.Ctx) error {
	postID := c.Params("postId")
	if postID == "" {
		return response.ValidationError(c, "Post ID is required", nil)
	}

	err := h.service.CancelPost(c.UserContext(), middleware.GetUserID(c), postID)
	var apiErr *client.APIError
	switch {
	case errors.Is(err, service.ErrNoActiveCredential):
		return response.Error(c, fiber.StatusBadRequest, response.CodeNoCredential, "No active Post-bridge API key", nil)
	case errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusNotFound:
		return response.NotFound(c, "Post not found")
	case errors.As(err, &apiErr):
		return response.UpstreamError(c, apiErr.Error())
	case err != nil:
		return response.ServiceError(c, "Failed to cancel post")
	}

	return response.OK(c, model.CancelPostResponse{Success: true, PostID: postID})
}
