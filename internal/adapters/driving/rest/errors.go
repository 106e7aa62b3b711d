package rest

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// apiError is the JSON error envelope.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the error interface.
func (e apiError) Error() string { return e.Message }

func newAPIError(code int, message string) apiError {
	return apiError{Code: code, Message: message}
}

// validationError reports which request fields failed validation.
type validationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

// Error implements the error interface.
func (e validationError) Error() string { return "validation failed" }

func newValidationError(fields map[string]string) validationError {
	return validationError{Status: fiber.StatusUnprocessableEntity, Errors: fields}
}

// errorHandler translates errors into JSON responses. Domain errors
// carry their own status; anything unrecognised is a 500.
func errorHandler(c *fiber.Ctx, err error) error {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}

	var valErr validationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(newAPIError(fiberErr.Code, fiberErr.Message))
	}

	code := statusForError(err)
	if code == fiber.StatusInternalServerError {
		logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(newAPIError(code, err.Error()))
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var budgetErr *domain.BudgetExceededError
	var genErr *domain.GenerationError

	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnsupportedFileType),
		errors.Is(err, domain.ErrSessionBookMismatch),
		errors.Is(err, domain.ErrBookNotReady):
		return fiber.StatusBadRequest
	case errors.As(err, &budgetErr):
		return fiber.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrProcessingConflict),
		errors.Is(err, domain.ErrAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrGeneratorUnavailable),
		errors.Is(err, domain.ErrEmbedderUnavailable),
		errors.As(err, &genErr):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
