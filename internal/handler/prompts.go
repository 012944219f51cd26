package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/makeasinger/sunoflow/pkg/response"
)

type PromptHandler struct {
	service   *service.PromptService
	validator *validator.Validate
}

func NewPromptHandler(svc *service.PromptService, v *validator.Validate) *PromptHandler {
	return &PromptHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/prompts/generate
func (h *PromptHandler) Generate(c *fiber.Ctx) error {
	var req model.PromptRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.GeneratePrompt(c.Context(), &req)
	if err != nil {
		return promptError(c, err)
	}

	return response.OK(c, result)
}

// Batch handles POST /api/prompts/batch
func (h *PromptHandler) Batch(c *fiber.Ctx) error {
	var req model.BatchPromptRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !h.service.IsConfigured() {
		return promptError(c, service.ErrNotConfigured)
	}

	return response.OK(c, fiber.Map{"results": h.service.GenerateBatch(c.Context(), &req)})
}

// Variations handles POST /api/prompts/variations
func (h *PromptHandler) Variations(c *fiber.Ctx) error {
	var req model.VariationsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !h.service.IsConfigured() {
		return promptError(c, service.ErrNotConfigured)
	}

	return response.OK(c, fiber.Map{"results": h.service.StyleVariations(c.Context(), &req)})
}

// Themes handles POST /api/prompts/themes
func (h *PromptHandler) Themes(c *fiber.Ctx) error {
	var req model.ThemesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	themes, err := h.service.RandomThemes(c.Context(), req.Count, req.Category)
	if err != nil {
		return promptError(c, err)
	}
	return response.OK(c, model.ThemesResponse{Themes: themes})
}

// promptError reports text model failures as AI errors.
func promptError(c *fiber.Ctx, err error) error {
	if service.ErrorCode(err) == response.CodeNotConfigured {
		return response.NotConfigured(c, "Prompt generation is not configured")
	}
	return response.AIError(c, err.Error())
}
