package worker

import (
	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, w *Worker, q *queue.Service, tracker *progress.Tracker) {
	handler := NewHandler(w, q, tracker)
	app.Get("/worker/health", handler.HandleHealth)
	jobs := app.Group("/jobs")
	jobs.Get("/:id/status", handler.HandleJobStatus)
	jobs.Post("/:id/cancel", handler.HandleCancel)
}
