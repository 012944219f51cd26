package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/makeasinger/sunoflow/pkg/response"
)

const defaultRecentTasks = 10

type TaskHandler struct {
	service         *service.GenerationService
	validator       *validator.Validate
	defaultKeepDays int
}

func NewTaskHandler(svc *service.GenerationService, v *validator.Validate, defaultKeepDays int) *TaskHandler {
	return &TaskHandler{
		service:         svc,
		validator:       v,
		defaultKeepDays: defaultKeepDays,
	}
}

// List handles GET /api/tasks?recent=N
func (h *TaskHandler) List(c *fiber.Ctx) error {
	recent := c.QueryInt("recent", defaultRecentTasks)
	if recent < 0 {
		return response.ValidationError(c, "recent must not be negative", nil)
	}
	return response.OK(c, h.service.ListTasks(recent))
}

// Get handles GET /api/tasks/:taskId
func (h *TaskHandler) Get(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	task, ok := h.service.Tasks().GetTask(taskID)
	if !ok {
		return response.NotFound(c, "Task not found")
	}
	return response.OK(c, task)
}

// Resume handles POST /api/tasks/:taskId/resume
//
// Blocks until the task settles. The wait is measured from the call.
func (h *TaskHandler) Resume(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	result, err := h.service.ResumeTask(c.Context(), taskID)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}

// Delete handles DELETE /api/tasks/:taskId
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	removed, err := h.service.Tasks().RemoveTask(c.Context(), taskID)
	if err != nil {
		return serviceError(c, err)
	}
	if !removed {
		return response.NotFound(c, "Task not found")
	}
	return response.NoContent(c)
}

// Prune handles POST /api/tasks/prune
func (h *TaskHandler) Prune(c *fiber.Ctx) error {
	req := model.PruneRequest{KeepDays: h.defaultKeepDays}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	removed, err := h.service.PruneTasks(c.Context(), req.KeepDays)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.PruneResponse{Removed: removed})
}
