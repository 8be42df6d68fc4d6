package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/cnpja"
)

// CreditsSource returns the provider's credit balance.
type CreditsSource interface {
	Get(ctx context.Context, force bool) (cnpja.Document, error)
}

// CreditsHandler exposes the provider's credit balance.
type CreditsHandler struct {
	credits CreditsSource
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(credits CreditsSource) *CreditsHandler {
	return &CreditsHandler{credits: credits}
}

// Get handles GET /api/credits. ?refresh=1 bypasses the cached balance.
func (h *CreditsHandler) Get(c fiber.Ctx) error {
	force := c.Query("refresh") == "1" || c.Query("refresh") == "true"

	doc, err := h.credits.Get(c.Context(), force)
	if err != nil {
		slog.Warn("failed to fetch credits", "error", err)
		return jsonError(c, fiber.StatusBadGateway, "failed to fetch credits")
	}
	return jsonSuccess(c, doc)
}
