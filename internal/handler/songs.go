package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/makeasinger/sunoflow/pkg/response"
)

type SongHandler struct {
	service *service.GenerationService
}

func NewSongHandler(svc *service.GenerationService) *SongHandler {
	return &SongHandler{service: svc}
}

// List handles GET /api/songs?recent=N&date=YYYY-MM-DD
func (h *SongHandler) List(c *fiber.Ctx) error {
	music := h.service.Music()

	if date := c.Query("date"); date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return response.ValidationError(c, "date must be YYYY-MM-DD", nil)
		}
		return response.OK(c, fiber.Map{"songs": nonNil(music.SongsByDate(date))})
	}

	recent := c.QueryInt("recent", 0)
	if recent < 0 {
		return response.ValidationError(c, "recent must not be negative", nil)
	}
	return response.OK(c, fiber.Map{"songs": nonNil(music.RecentSongs(recent))})
}

// Stats handles GET /api/songs/stats
func (h *SongHandler) Stats(c *fiber.Ctx) error {
	return response.OK(c, h.service.Music().Stats())
}

// Get handles GET /api/songs/:songId
func (h *SongHandler) Get(c *fiber.Ctx) error {
	song, ok := h.service.Music().GetSong(c.Params("songId"))
	if !ok {
		return response.NotFound(c, "Song not found")
	}
	return response.OK(c, song)
}

// Delete handles DELETE /api/songs/:songId
func (h *SongHandler) Delete(c *fiber.Ctx) error {
	deleted, err := h.service.Music().DeleteSong(c.Context(), c.Params("songId"))
	if err != nil {
		return serviceError(c, err)
	}
	if !deleted {
		return response.NotFound(c, "Song not found")
	}
	return response.NoContent(c)
}

// Refresh handles POST /api/songs/:songId/refresh
//
// Upstream audio URLs expire; this re-reads the task and stores the current one.
func (h *SongHandler) Refresh(c *fiber.Ctx) error {
	song, err := h.service.RefreshAudioURL(c.Context(), c.Params("songId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, song)
}

// Export handles GET /api/songs/:songId/youtube
func (h *SongHandler) Export(c *fiber.Ctx) error {
	export, err := h.service.Music().ExportForYouTube(c.Params("songId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, export)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
