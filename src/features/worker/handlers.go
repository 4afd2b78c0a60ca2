package worker

import (
	"time"

	"github.com/cruxtone/hymnsift/src/features/hosting"
	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/gofiber/fiber/v2"
)

// heartbeatMaxAge is how stale the heartbeat may be before health degrades.
const heartbeatMaxAge = 30 * time.Second

type Handler struct {
	worker  *Worker
	queue   *queue.Service
	tracker *progress.Tracker
}

func NewHandler(w *Worker, q *queue.Service, tracker *progress.Tracker) *Handler {
	return &Handler{worker: w, queue: q, tracker: tracker}
}

// HandleHealth reports worker liveness and stats. Non-200 when the loop is
// not running or the heartbeat has gone stale.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	stats := h.worker.Snapshot()
	healthy := stats.Running && time.Since(stats.LastHeartbeat) < heartbeatMaxAge
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "error",
			"data":    stats,
			"message": "Worker unhealthy",
		})
	}
	return hosting.Success(c, stats, "Worker healthy")
}

// HandleJobStatus returns a job's record, live progress, and ETA. 404 for
// unknown jobs.
func (h *Handler) HandleJobStatus(c *fiber.Ctx) error {
	jobID := c.Params("id")
	job, err := h.queue.Get(c.Context(), jobID)
	if err != nil {
		return hosting.Respond(c, err)
	}
	if job == nil {
		return hosting.Fail(c, hosting.NewError(fiber.StatusNotFound, hosting.TypeNotFound, "unknown job: "+jobID))
	}

	record, err := h.tracker.Get(c.Context(), jobID)
	if err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, fiber.Map{
		"job":      job,
		"progress": record,
	}, "Job status")
}

// HandleCancel cancels a job: pending jobs leave the queue immediately, the
// active job is stopped at the next item boundary.
func (h *Handler) HandleCancel(c *fiber.Ctx) error {
	jobID := c.Params("id")
	job, err := h.queue.Get(c.Context(), jobID)
	if err != nil {
		return hosting.Respond(c, err)
	}
	if job == nil {
		return hosting.Fail(c, hosting.NewError(fiber.StatusNotFound, hosting.TypeNotFound, "unknown job: "+jobID))
	}
	if job.Status.Terminal() {
		return hosting.Fail(c, hosting.NewError(fiber.StatusConflict, hosting.TypeConflict, "job already finished"))
	}

	reason := c.Query("reason", "cancelled by user")
	if err := h.worker.Cancel(c.Context(), jobID, reason); err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, fiber.Map{"job_id": jobID}, "Cancellation requested")
}
