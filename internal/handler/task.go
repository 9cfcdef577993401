package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/api/internal/middleware"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/pkg/response"
)

type TaskHandler struct {
	pipeline  *pipeline.Service
	validator *validator.Validate
}

func NewTaskHandler(svc *pipeline.Service, v *validator.Validate) *TaskHandler {
	return &TaskHandler{
		pipeline:  svc,
		validator: v,
	}
}

// guardError maps pipeline rejections onto response codes. Guard rejections
// are 409s with the reason, not-found stays distinct.
func guardError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return response.NotFound(c, "Task not found")
	case errors.Is(err, pipeline.ErrTaskNotAvailable),
		errors.Is(err, pipeline.ErrDependenciesUnmet),
		errors.Is(err, pipeline.ErrPhaseLocked),
		errors.Is(err, pipeline.ErrWorkerAtCapacity),
		errors.Is(err, pipeline.ErrNotClaimant),
		errors.Is(err, pipeline.ErrWrongStatus),
		errors.Is(err, pipeline.ErrAttemptsExhausted):
		return response.Conflict(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

// Get handles GET /api/tasks/:taskId
func (h *TaskHandler) Get(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	task, err := h.pipeline.GetTask(c.Context(), taskID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return response.NotFound(c, "Task not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, task)
}

// Claim handles POST /api/tasks/:taskId/claim
func (h *TaskHandler) Claim(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	task, err := h.pipeline.Claim(c.Context(), taskID, middleware.GetUserID(c))
	if err != nil {
		return guardError(c, err)
	}

	return response.OK(c, model.TaskActionResponse{
		TaskID:   task.ID,
		Status:   task.Status,
		Deadline: task.Deadline,
	})
}

// Submit handles POST /api/tasks/:taskId/submit
func (h *TaskHandler) Submit(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	var req model.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.pipeline.Submit(c.Context(), taskID, middleware.GetUserID(c), req.Content)
	if err != nil {
		return guardError(c, err)
	}

	return response.OK(c, result)
}

// Abandon handles POST /api/tasks/:taskId/abandon
func (h *TaskHandler) Abandon(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	if err := h.pipeline.Abandon(c.Context(), taskID, middleware.GetUserID(c)); err != nil {
		return guardError(c, err)
	}

	return response.OK(c, model.TaskActionResponse{
		TaskID: taskID,
		Status: model.TaskStatusAvailable,
	})
}

// Review handles POST /api/tasks/:taskId/review (admin only)
func (h *TaskHandler) Review(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	var req model.ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.pipeline.Review(c.Context(), taskID, middleware.GetUserID(c), req.Approve)
	if err != nil {
		return guardError(c, err)
	}

	return response.OK(c, result)
}
