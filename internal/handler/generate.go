package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/makeasinger/sunoflow/pkg/response"
)

type GenerateHandler struct {
	service   *service.GenerationService
	validator *validator.Validate
}

func NewGenerateHandler(svc *service.GenerationService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/generate
//
// Responds 202 with the pending task unless the request asks to wait, in
// which case the response carries the saved clips.
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Generate(c.Context(), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return generateResponse(c, result)
}

// FromTheme handles POST /api/generate/theme
func (h *GenerateHandler) FromTheme(c *fiber.Ctx) error {
	var req model.ThemeGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.GenerateFromTheme(c.Context(), &req)
	if err != nil {
		return serviceError(c, err)
	}

	return generateResponse(c, result)
}

// Credits handles GET /api/credits
func (h *GenerateHandler) Credits(c *fiber.Ctx) error {
	credits, err := h.service.Credits(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, model.CreditsResponse{Credits: credits})
}

func generateResponse(c *fiber.Ctx, result *model.GenerateResponse) error {
	if result.Status == model.TaskStatusPending {
		return response.Accepted(c, result)
	}
	return response.OK(c, result)
}
