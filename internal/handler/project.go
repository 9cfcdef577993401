package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/pkg/response"
)

type ProjectHandler struct {
	pipeline  *pipeline.Service
	validator *validator.Validate
}

func NewProjectHandler(svc *pipeline.Service, v *validator.Validate) *ProjectHandler {
	return &ProjectHandler{
		pipeline:  svc,
		validator: v,
	}
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req model.ProjectCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.pipeline.CreateProject(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Get handles GET /api/projects/:projectId
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	project, err := h.pipeline.GetProject(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, project)
}

// ListTasks handles GET /api/projects/:projectId/tasks
func (h *ProjectHandler) ListTasks(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	tasks, err := h.pipeline.ListTasks(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"tasks": tasks})
}
