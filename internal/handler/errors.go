package handler

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/makeasinger/sunoflow/pkg/response"
)

// errorStatus maps service error codes to HTTP status codes
var errorStatus = map[string]int{
	response.CodeGenerationTimeout:   fiber.StatusGatewayTimeout,
	response.CodeJobFailed:           fiber.StatusBadGateway,
	response.CodeSessionExpired:      fiber.StatusUnauthorized,
	response.CodeServiceUnavailable:  fiber.StatusServiceUnavailable,
	response.CodeUpstreamUnavailable: fiber.StatusBadGateway,
	response.CodeUpstreamRejected:    fiber.StatusBadGateway,
	response.CodeTooManyTasks:        fiber.StatusTooManyRequests,
	response.CodeNotFound:            fiber.StatusNotFound,
	response.CodeNotConfigured:       fiber.StatusServiceUnavailable,
}

// serviceError writes err as an error envelope with a status derived from
// its kind.
func serviceError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrInvalidPrompt) {
		return response.AIError(c, err.Error())
	}

	code := service.ErrorCode(err)
	status, ok := errorStatus[code]
	if !ok {
		log.Printf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return response.ServiceError(c, err.Error())
	}
	return response.Error(c, status, code, err.Error(), nil)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
