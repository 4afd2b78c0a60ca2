package analysis

import (
	"strconv"

	"github.com/cruxtone/hymnsift/src/features/hosting"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// callerID reads the authenticated user id the host application injects.
func callerID(c *fiber.Ctx) (int64, error) {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return 0, hosting.NewError(fiber.StatusUnauthorized, hosting.TypeAuthentication, "missing X-User-ID header")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, hosting.NewError(fiber.StatusUnauthorized, hosting.TypeAuthentication, "X-User-ID must be an integer")
	}
	return userID, nil
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil {
		return 0, hosting.NewError(fiber.StatusBadRequest, hosting.TypeValidation, name+" must be an integer")
	}
	return id, nil
}

func (h *Handler) HandleAnalyzeSong(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return hosting.Respond(c, err)
	}
	songID, err := pathID(c, "song_id")
	if err != nil {
		return hosting.Respond(c, err)
	}
	jobID, err := h.service.AnalyzeSong(c.Context(), userID, songID)
	if err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, fiber.Map{"job_id": jobID}, "Song analysis enqueued")
}

func (h *Handler) HandleAnalyzeUnanalyzed(c *fiber.Ctx) error {
	return h.analyzePlaylist(c, true)
}

func (h *Handler) HandleReanalyzeAll(c *fiber.Ctx) error {
	return h.analyzePlaylist(c, false)
}

func (h *Handler) analyzePlaylist(c *fiber.Ctx, unanalyzedOnly bool) error {
	userID, err := callerID(c)
	if err != nil {
		return hosting.Respond(c, err)
	}
	playlistID, err := pathID(c, "playlist_id")
	if err != nil {
		return hosting.Respond(c, err)
	}
	jobID, err := h.service.AnalyzePlaylist(c.Context(), userID, playlistID, unanalyzedOnly)
	if err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, fiber.Map{"job_id": jobID}, "Playlist analysis enqueued")
}

func (h *Handler) HandleBackground(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return hosting.Respond(c, err)
	}
	var body struct {
		SongIDs []int64 `json:"song_ids"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return hosting.Respond(c, hosting.NewError(fiber.StatusBadRequest, hosting.TypeValidation, "malformed request body"))
		}
	}
	jobID, err := h.service.AnalyzeBackground(c.Context(), userID, body.SongIDs)
	if err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, fiber.Map{"job_id": jobID}, "Background analysis enqueued")
}

func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return hosting.Respond(c, err)
	}
	status, err := h.service.Status(c.Context(), userID)
	if err != nil {
		return hosting.Respond(c, err)
	}
	return hosting.Success(c, status, "Analysis status")
}
