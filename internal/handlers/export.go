package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/export"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/middleware"
	"consultacnpj/internal/models"
)

// ExportHandler serves spreadsheet downloads.
type ExportHandler struct {
	jobs    *jobs.Manager
	history HistoryLister
	now     func() time.Time
}

// NewExportHandler creates a new export handler.
func NewExportHandler(manager *jobs.Manager, history HistoryLister) *ExportHandler {
	return &ExportHandler{jobs: manager, history: history, now: time.Now}
}

// Results exports the caller's current or last finalized results. The
// format comes from the :format route parameter.
func (h *ExportHandler) Results(c fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	results := h.jobs.Results(user.OwnerKey())
	if len(results) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no results to export")
	}
	return h.send(c, "resultados", export.FromResults(results), false)
}

// History exports every stored snapshot, one row per result, with the
// snapshot date.
func (h *ExportHandler) History(c fiber.Ctx) error {
	records, err := h.loadHistory(c.Context())
	if err != nil {
		return err
	}
	return h.send(c, "historico", export.FromHistory(records), true)
}

func (h *ExportHandler) loadHistory(ctx context.Context) ([]models.History, error) {
	records, err := h.history.ListHistory(ctx, 0)
	if err != nil {
		slog.Error("failed to list history for export", "error", err)
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to load history")
	}
	return records, nil
}

func (h *ExportHandler) send(c fiber.Ctx, base string, rows []export.Row, withDate bool) error {
	var (
		body        []byte
		contentType string
		err         error
	)

	format := c.Params("format")
	switch format {
	case "csv":
		body, err = export.CSV(rows, withDate)
		contentType = export.ContentTypeCSV
	case "xlsx":
		body, err = export.XLSX(rows, withDate)
		contentType = export.ContentTypeXLSX
	default:
		return fiber.NewError(fiber.StatusNotFound, "unknown export format")
	}
	if err != nil {
		slog.Error("failed to render export", "format", format, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to render export")
	}

	filename := fmt.Sprintf("%s_%s.%s", base, h.now().Format("20060102_150405"), format)
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(body)
}
