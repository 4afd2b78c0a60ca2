package hosting

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Error types surfaced in the API envelope.
const (
	TypeValidation      = "ValidationError"
	TypeAuthentication  = "AuthenticationError"
	TypeAuthorization   = "AuthorizationError"
	TypeNotFound        = "ResourceNotFound"
	TypeTimeout         = "TimeoutError"
	TypeConflict        = "ConflictError"
	TypeRateLimit       = "RateLimitError"
	TypeExternalService = "ExternalServiceError"
	TypeServer          = "ServerError"
)

// APIError is a typed request error that handlers map onto the envelope.
type APIError struct {
	Status  int
	Type    string
	Message string
	Details any
}

func (e *APIError) Error() string { return e.Message }

// NewError builds a typed API error.
func NewError(status int, errType, message string) *APIError {
	return &APIError{Status: status, Type: errType, Message: message}
}

// Success writes the shared success envelope.
func Success(c *fiber.Ctx, data any, message string) error {
	return c.JSON(fiber.Map{
		"status":    "success",
		"data":      data,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Fail writes the shared error envelope with a fresh error id and the
// request's correlation id.
func Fail(c *fiber.Ctx, err *APIError) error {
	requestID, _ := c.Locals("request_id").(string)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	payload := fiber.Map{
		"code":       err.Status,
		"type":       err.Type,
		"message":    err.Message,
		"id":         uuid.New().String(),
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if err.Details != nil {
		payload["details"] = err.Details
	}
	return c.Status(err.Status).JSON(fiber.Map{
		"status":  "error",
		"data":    nil,
		"message": err.Message,
		"error":   payload,
	})
}

// Respond maps any error onto the envelope: typed errors keep their status,
// everything else becomes a 500.
func Respond(c *fiber.Ctx, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return Fail(c, apiErr)
	}
	return Fail(c, NewError(fiber.StatusInternalServerError, TypeServer, err.Error()))
}
