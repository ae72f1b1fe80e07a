package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/middleware"
	"github.com/hiswaca/etl-console/internal/model"
	"github.com/hiswaca/etl-console/internal/service"
	"github.com/hiswaca/etl-console/pkg/response"
)

type listUploadsQuery struct {
	Page   int    `query:"page" validate:"omitempty,min=1"`
	Status string `query:"status" validate:"omitempty,oneof=PENDING PROCESSING COMPLETED FAILED pending processing completed failed"`
}

type UploadsHandler struct {
	history   *service.HistoryService
	process   *service.ProcessService
	validator *validator.Validate
}

func NewUploadsHandler(history *service.HistoryService, process *service.ProcessService, v *validator.Validate) *UploadsHandler {
	return &UploadsHandler{
		history:   history,
		process:   process,
		validator: v,
	}
}

// List handles GET /api/etl/uploads
func (h *UploadsHandler) List(c *fiber.Ctx) error {
	var q listUploadsQuery
	if err := c.QueryParser(&q); err != nil {
		return response.ValidationError(c, "Invalid query parameters", nil)
	}
	if err := h.validator.Struct(&q); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	status, _ := model.ParseUploadStatus(q.Status)
	page, err := h.history.List(c.UserContext(), q.Page, status)
	if err != nil {
		return portalError(c, err)
	}
	return response.OK(c, page)
}

// Get handles GET /api/etl/uploads/:id
func (h *UploadsHandler) Get(c *fiber.Ctx) error {
	id, err := uploadID(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	record, err := h.history.Get(c.UserContext(), id)
	if err != nil {
		return portalError(c, err)
	}
	return response.OK(c, record)
}

// Process handles POST /api/etl/uploads/:id/process
func (h *UploadsHandler) Process(c *fiber.Ctx) error {
	id, err := uploadID(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	ticket, err := h.process.Enqueue(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrAlreadyQueued) {
			return response.Conflict(c, "Processing of this upload is already queued", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, ticket)
}

// Outcome handles GET /api/etl/uploads/:id/outcome
func (h *UploadsHandler) Outcome(c *fiber.Ctx) error {
	id, err := uploadID(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	outcome, err := h.process.Outcome(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, service.ErrNoOutcome) {
			return response.NotFound(c, "No processing result recorded for this upload")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, outcome)
}

// Artifact handles GET /api/etl/uploads/:id/artifact. With ?redirect=true the
// client is sent to the presigned URL instead of receiving it as JSON.
func (h *UploadsHandler) Artifact(c *fiber.Ctx) error {
	id, err := uploadID(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	art, err := h.history.Artifact(c.UserContext(), id)
	if err != nil {
		return portalError(c, err)
	}

	if dl := art.Download; dl != nil {
		c.Set(fiber.HeaderContentType, dl.ContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, dl.FileName))
		size := -1
		if dl.ContentLength >= 0 {
			size = int(dl.ContentLength)
		}
		return c.SendStream(dl.Body, size)
	}

	if c.QueryBool("redirect") {
		return c.Redirect(art.URL, fiber.StatusFound)
	}
	return response.OK(c, art)
}

// Delete handles DELETE /api/etl/uploads/:id
func (h *UploadsHandler) Delete(c *fiber.Ctx) error {
	id, err := uploadID(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	if err := h.history.Delete(c.UserContext(), id); err != nil {
		return portalError(c, err)
	}
	return response.NoContent(c)
}

func uploadID(c *fiber.Ctx) (int, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, errors.New("upload id must be a positive integer")
	}
	return id, nil
}

// portalError maps a backend failure onto the console's error envelope
func portalError(c *fiber.Ctx, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == fiber.StatusNotFound {
			return response.NotFound(c, apiErr.Message())
		}
		return response.BackendError(c, apiErr.StatusCode, apiErr.Message())
	}

	var transportErr *client.TransportError
	if errors.As(err, &transportErr) {
		return response.BackendUnavailable(c, client.UserMessage(err))
	}

	return response.ServiceError(c, err.Error())
}
