package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/api/internal/jobqueue"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/pkg/response"
)

// TranscodeHandler exposes the admin transcode queue.
type TranscodeHandler struct {
	queue     *jobqueue.Queue
	runner    *jobqueue.Runner
	validator *validator.Validate
}

func NewTranscodeHandler(queue *jobqueue.Queue, runner *jobqueue.Runner, v *validator.Validate) *TranscodeHandler {
	return &TranscodeHandler{
		queue:     queue,
		runner:    runner,
		validator: v,
	}
}

// Start handles POST /api/admin/transcode
func (h *TranscodeHandler) Start(c *fiber.Ctx) error {
	var req model.TranscodeStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.queue.Enqueue(&req)
	if err != nil {
		if errors.Is(err, jobqueue.ErrNoValidProfile) {
			return response.ValidationError(c, "No recognized transcode profile requested", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	h.runner.Start(job.ID)
	return response.Accepted(c, job)
}

// Status handles GET /api/admin/transcode/:jobId
func (h *TranscodeHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.queue.Get(jobID)
	if err != nil {
		if errors.Is(err, jobqueue.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// List handles GET /api/admin/transcode?status=...
func (h *TranscodeHandler) List(c *fiber.Ctx) error {
	var filter *model.JobStatus
	if raw := c.Query("status"); raw != "" {
		status := model.JobStatus(raw)
		filter = &status
	}

	return response.OK(c, fiber.Map{"jobs": h.queue.List(filter)})
}

// Cancel handles POST /api/admin/transcode/:jobId/cancel
func (h *TranscodeHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.queue.Cancel(jobID)
	if err != nil {
		if errors.Is(err, jobqueue.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, jobqueue.ErrNotCancellable) {
			return response.Conflict(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Stats handles GET /api/admin/transcode/stats
func (h *TranscodeHandler) Stats(c *fiber.Ctx) error {
	return response.OK(c, h.queue.Stats())
}
