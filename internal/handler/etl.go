package handler

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/hiswaca/etl-console/internal/etl"
	"github.com/hiswaca/etl-console/internal/middleware"
	"github.com/hiswaca/etl-console/internal/model"
	"github.com/hiswaca/etl-console/internal/service"
	"github.com/hiswaca/etl-console/pkg/response"
)

const maxSourceFileSize = 50 * 1024 * 1024 // 50MB

// submitJobForm holds the non-file fields of POST /api/etl/jobs
type submitJobForm struct {
	DataModel string `form:"dataModel" validate:"max=32"`
	Period    string `form:"period" validate:"max=7"`
	Public    bool   `form:"public"`
}

type ETLHandler struct {
	service   *service.IngestionService
	validator *validator.Validate
}

func NewETLHandler(svc *service.IngestionService, v *validator.Validate) *ETLHandler {
	return &ETLHandler{
		service:   svc,
		validator: v,
	}
}

// Models handles GET /api/etl/models
func (h *ETLHandler) Models(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"models": h.service.Catalog()})
}

// Submit handles POST /api/etl/jobs
func (h *ETLHandler) Submit(c *fiber.Ctx) error {
	var form submitJobForm
	if err := c.BodyParser(&form); err != nil {
		return response.ValidationError(c, "Invalid form data", nil)
	}
	if err := h.validator.Struct(&form); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	cfg := model.IngestionJobConfig{
		DataModelID: form.DataModel,
		Period:      form.Period,
		Public:      form.Public,
	}

	// A missing file is reported by the coordinator like every other precondition
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > maxSourceFileSize {
			return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
				"maxSize":  maxSourceFileSize,
				"fileSize": fh.Size,
			})
		}

		f, err := fh.Open()
		if err != nil {
			return response.ValidationError(c, "Failed to read file", nil)
		}
		// The submission outlives the request, so the body is buffered here
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return response.ValidationError(c, "Failed to read file", nil)
		}
		cfg.SourceFile = &model.SourceFile{Name: fh.Filename, Size: int64(len(data)), Reader: bytes.NewReader(data)}
	}

	job, err := h.service.Submit(c.UserContext(), middleware.GetUserID(c), cfg)
	if err != nil {
		var verr *etl.ValidationError
		switch {
		case errors.As(err, &verr):
			return response.ValidationError(c, verr.Message, fiber.Map{"kind": verr.Kind})
		case errors.Is(err, service.ErrJobInProgress), errors.Is(err, service.ErrJobNotIdle):
			return response.Conflict(c, err.Error(), job)
		case errors.Is(err, context.Canceled):
			return response.Error(c, fiber.StatusServiceUnavailable, response.CodeServiceError, "Server is shutting down", nil)
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.Accepted(c, job)
}

// Current handles GET /api/etl/jobs/current
func (h *ETLHandler) Current(c *fiber.Ctx) error {
	return response.OK(c, h.service.Current(middleware.GetUserID(c)))
}

// Job handles GET /api/etl/jobs/:jobId
func (h *ETLHandler) Job(c *fiber.Ctx) error {
	job, err := h.service.Lookup(middleware.GetUserID(c), c.Params("jobId"))
	if err != nil {
		return response.NotFound(c, "Job not found")
	}
	return response.OK(c, job)
}

// Reset handles POST /api/etl/jobs/current/reset
func (h *ETLHandler) Reset(c *fiber.Ctx) error {
	return response.OK(c, h.service.Reset(middleware.GetUserID(c)))
}

// StreamGuard resolves the job before a WebSocket upgrade so only its owner
// can subscribe. The snapshot is left in Locals("job").
func (h *ETLHandler) StreamGuard(c *fiber.Ctx) error {
	job, err := h.service.Lookup(middleware.GetUserID(c), c.Params("jobId"))
	if err != nil {
		return response.NotFound(c, "Job not found")
	}
	c.Locals("job", job)
	return c.Next()
}
