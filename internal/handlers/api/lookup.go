package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/validation"
)

// OfficeFetcher performs a single upstream lookup.
type OfficeFetcher interface {
	Office(ctx context.Context, cnpj string, opts cnpja.FetchOptions) (cnpja.Document, error)
}

// LookupHandler answers single identifier lookups with the raw upstream
// document.
type LookupHandler struct {
	client OfficeFetcher
	opts   cnpja.FetchOptions
}

// NewLookupHandler creates a new lookup handler using the primary strategy
// options.
func NewLookupHandler(client OfficeFetcher, opts cnpja.FetchOptions) *LookupHandler {
	return &LookupHandler{client: client, opts: opts}
}

// Lookup handles GET /api/cnpj/:cnpj.
func (h *LookupHandler) Lookup(c fiber.Ctx) error {
	cnpj, err := validation.RequireCNPJ(c.Params("cnpj"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	}

	doc, err := h.client.Office(c.Context(), cnpj, h.opts)
	if err != nil {
		if upstream, ok := cnpja.AsUpstreamError(err); ok {
			return jsonError(c, fiber.StatusBadRequest, upstream.Error())
		}
		slog.Error("lookup failed", "cnpj", cnpj, "error", err)
		if errors.Is(err, cnpja.ErrTransient) {
			return jsonError(c, fiber.StatusInternalServerError, "upstream unavailable")
		}
		return jsonError(c, fiber.StatusInternalServerError, "lookup failed")
	}

	return jsonSuccess(c, doc)
}
