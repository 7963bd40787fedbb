package utils

import (
	"errors"
	"strconv"

	"reachly/engine"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse creates a standardized error response
func ErrorResponse(c *fiber.Ctx, status int, message string, err error) error {
	response := fiber.Map{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	return c.Status(status).JSON(response)
}

// SuccessResponse creates a standardized success response
func SuccessResponse(data interface{}) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    data,
	}
}

// EngineError maps the engine's sentinel errors to HTTP statuses. Invalid
// state covers the lost-a-race case, which the UI resolves by refetching.
func EngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return ErrorResponse(c, fiber.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrInvalidCriteria):
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter criteria", err)
	case errors.Is(err, engine.ErrDraftExpired):
		return ErrorResponse(c, fiber.StatusGone, "Draft review window has expired", err)
	case errors.Is(err, engine.ErrInvalidState):
		return ErrorResponse(c, fiber.StatusConflict, "Entity is no longer in the expected state", err)
	}
	return ErrorResponse(c, fiber.StatusInternalServerError, "Operation failed", err)
}

// ParseUint safely parses a string to uint
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

// PaginatedResponse structure for paginated results
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
