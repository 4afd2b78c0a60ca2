package analysis

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, service *Service) {
	handler := NewHandler(service)
	app.Post("/songs/:song_id/analyze", handler.HandleAnalyzeSong)
	app.Post("/playlists/:playlist_id/analyze-unanalyzed", handler.HandleAnalyzeUnanalyzed)
	app.Post("/playlists/:playlist_id/reanalyze-all", handler.HandleReanalyzeAll)
	app.Post("/analysis/background", handler.HandleBackground)
	app.Get("/analysis/status", handler.HandleStatus)
}
