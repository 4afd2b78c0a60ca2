package queue

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, service *Service) {
	handler := NewHandler(service)
	q := app.Group("/queue")
	q.Get("/status", handler.HandleStatus)
	q.Get("/health", handler.HandleHealth)
	q.Post("/clear", handler.HandleClear)
}
