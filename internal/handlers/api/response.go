package api

import (
	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/middleware"
	"consultacnpj/internal/models"
)

// jsonSuccess returns a 200 response with data wrapped in the standard envelope.
func jsonSuccess(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonError returns an error response with the given HTTP status code.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}

// ownerKey returns the job owner of the authenticated user.
func ownerKey(c fiber.Ctx) (string, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return "", false
	}
	return user.OwnerKey(), true
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// summarize builds the short history view used by listings.
func summarize(h models.History) models.HistorySummary {
	return models.HistorySummary{
		ID:       h.ID.String(),
		Kind:     h.Kind,
		Date:     h.CreatedAt.Format("02/01/2006 15:04"),
		Count:    len(h.Results),
		Filename: stringOrEmpty(h.Filename),
	}
}
