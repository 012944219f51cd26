package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/pkg/response"
)

// LibraryBrowser lists clips from the studio library. *client.SunoDirectClient
// satisfies it.
type LibraryBrowser interface {
	GetFeed(ctx context.Context, page int) ([]model.LibraryClip, error)
	GetClip(ctx context.Context, clipID string) (*model.LibraryClip, error)
}

type LibraryHandler struct {
	browser LibraryBrowser
}

// NewLibraryHandler creates the library handler. browser may be nil when no
// studio session is configured.
func NewLibraryHandler(browser LibraryBrowser) *LibraryHandler {
	return &LibraryHandler{browser: browser}
}

// Feed handles GET /api/library/feed?page=N
func (h *LibraryHandler) Feed(c *fiber.Ctx) error {
	if h.browser == nil {
		return response.NotConfigured(c, "Studio session is not configured")
	}
	page := c.QueryInt("page", 0)
	if page < 0 {
		return response.ValidationError(c, "page must not be negative", nil)
	}

	clips, err := h.browser.GetFeed(c.Context(), page)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, fiber.Map{"page": page, "clips": nonNil(clips)})
}

// Clip handles GET /api/library/clips/:clipId
func (h *LibraryHandler) Clip(c *fiber.Ctx) error {
	if h.browser == nil {
		return response.NotConfigured(c, "Studio session is not configured")
	}

	clip, err := h.browser.GetClip(c.Context(), c.Params("clipId"))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, clip)
}
