package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/reelsched/api/internal/middleware"
	"github.com/reelsched/api/internal/service"
	"github.com/reelsched/api/pkg/response"
)

const maxUploadSize = 200 * 1024 * 1024 // 200MB

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Media handles POST /api/upload/media
func (h *UploadHandler) Media(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 200MB limit", fiber.Map{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.UploadMedia(c.UserContext(), middleware.GetUserID(c), f, file.Size)
	switch {
	case errors.Is(err, service.ErrStorageNotConfigured):
		return response.ServiceUnavailable(c, "Media storage is not configured")
	case errors.Is(err, service.ErrUnsupportedMediaType):
		return response.Error(c, fiber.StatusBadRequest, response.CodeUnsupportedMedia,
			"Only image, video and audio files are accepted", nil)
	case err != nil:
		return response.ServiceError(c, "Failed to upload file")
	}

	return response.Created(c, result)
}
