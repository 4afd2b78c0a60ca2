package hosting

import (
	"fmt"
	"log/slog"

	"github.com/cruxtone/hymnsift/src/features/config"
	"github.com/gofiber/fiber/v2"
)

// Server is the HTTP control surface for the pipeline.
type Server struct {
	app  *fiber.App
	port uint32
}

// NewServer creates the HTTP server. Each feature hands in a registrar that
// mounts its routes; hosting itself stays free of feature dependencies.
func NewServer(cfg *config.Manager, register ...func(app *fiber.App)) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("Internal Server Error", "error", err)
			return Fail(c, NewError(fiber.StatusInternalServerError, TypeServer, err.Error()))
		},
		AppName:               "Hymnsift",
		DisableStartupMessage: true,
		EnablePrintRoutes:     cfg.Get().Server.PrintRoutes,
	})

	app.Use(RequestIDMiddleware())
	app.Use(LogAllRequestsMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	for _, fn := range register {
		fn(app)
	}

	return &Server{app: app, port: cfg.Get().Server.Port}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.app.Listen(":" + fmt.Sprint(s.port))
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
