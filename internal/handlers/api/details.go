package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/db"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/validation"
)

// detailsScanLimit bounds how many history records are searched.
const detailsScanLimit = 200

// DetailsFinder searches stored history for a registry document.
type DetailsFinder interface {
	FindDetails(ctx context.Context, cnpj string, scanLimit int) (map[string]any, error)
}

// DetailsHandler returns the stored details of a previously resolved
// identifier without calling the provider.
type DetailsHandler struct {
	jobs    *jobs.Manager
	history DetailsFinder
}

// NewDetailsHandler creates a new details handler.
func NewDetailsHandler(manager *jobs.Manager, history DetailsFinder) *DetailsHandler {
	return &DetailsHandler{jobs: manager, history: history}
}

// Details handles GET /api/details/:cnpj. The caller's current results are
// searched before history.
func (h *DetailsHandler) Details(c fiber.Ctx) error {
	cnpj, err := validation.RequireCNPJ(c.Params("cnpj"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	if owner, ok := ownerKey(c); ok {
		if details := db.DetailsInResults(h.jobs.Results(owner), cnpj); details != nil {
			return jsonSuccess(c, details)
		}
	}

	details, err := h.history.FindDetails(c.Context(), cnpj, detailsScanLimit)
	if err != nil {
		if errors.Is(err, db.ErrDetailsNotFound) {
			return jsonError(c, fiber.StatusNotFound, "details not found")
		}
		slog.Error("failed to search history", "cnpj", cnpj, "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to search history")
	}
	return jsonSuccess(c, details)
}
