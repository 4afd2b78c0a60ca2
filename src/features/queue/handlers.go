package queue

import (
	"strconv"
	"time"

	"github.com/cruxtone/hymnsift/src/features/hosting"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleStatus returns the full queue summary.
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	summary, err := h.service.Status(c.Context())
	if err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, summary, "Queue status")
}

// HandleHealth reports queue liveness: Redis reachable, queue accessible,
// last activity. 503 when unhealthy.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	if err := h.service.Ping(c.Context()); err != nil {
		return hosting.Fail(c, hosting.NewError(fiber.StatusServiceUnavailable, hosting.TypeExternalService, "redis unreachable: "+err.Error()))
	}
	summary, err := h.service.Status(c.Context())
	if err != nil {
		return hosting.Fail(c, hosting.NewError(fiber.StatusServiceUnavailable, hosting.TypeExternalService, "queue inaccessible: "+err.Error()))
	}
	return hosting.Success(c, fiber.Map{
		"redis_reachable": true,
		"queue_length":    summary.TotalPending,
		"last_activity":   h.service.LastActivity().UTC().Format(time.RFC3339),
	}, "Queue healthy")
}

// HandleClear removes queued jobs, optionally scoped to one user.
func (h *Handler) HandleClear(c *fiber.Ctx) error {
	var userID *int64
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return hosting.Fail(c, hosting.NewError(fiber.StatusBadRequest, hosting.TypeValidation, "user_id must be an integer"))
		}
		userID = &parsed
	}
	removed, err := h.service.Clear(c.Context(), userID)
	if err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, fiber.Map{"removed": removed}, "Queue cleared")
}
