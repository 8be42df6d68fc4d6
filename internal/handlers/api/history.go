package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"consultacnpj/internal/db"
	"consultacnpj/internal/models"
)

// RecentHistoryLimit is the number of snapshots listed by default.
const RecentHistoryLimit = 30

// HistoryStore reads and clears stored snapshots.
type HistoryStore interface {
	ListHistory(ctx context.Context, limit int) ([]models.History, error)
	GetHistory(ctx context.Context, id uuid.UUID) (*models.History, error)
	ClearHistory(ctx context.Context) (int64, error)
}

// HistoryHandler handles history API endpoints.
type HistoryHandler struct {
	history HistoryStore
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history HistoryStore) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns the most recent snapshots, newest first.
func (h *HistoryHandler) List(c fiber.Ctx) error {
	records, err := h.history.ListHistory(c.Context(), RecentHistoryLimit)
	if err != nil {
		slog.Error("failed to list history", "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to list history")
	}

	summaries := make([]models.HistorySummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, summarize(r))
	}
	return jsonSuccess(c, summaries)
}

// Get returns one snapshot with its results.
func (h *HistoryHandler) Get(c fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid history id")
	}

	record, err := h.history.GetHistory(c.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrHistoryNotFound) {
			return jsonError(c, fiber.StatusNotFound, "history not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to load history")
	}
	return jsonSuccess(c, record)
}

// Clear deletes every snapshot.
func (h *HistoryHandler) Clear(c fiber.Ctx) error {
	n, err := h.history.ClearHistory(c.Context())
	if err != nil {
		slog.Error("failed to clear history", "error", err)
		return jsonError(c, fiber.StatusInternalServerError, "failed to clear history")
	}
	return jsonSuccess(c, fiber.Map{"deleted": n})
}
