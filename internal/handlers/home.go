package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/config"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/middleware"
	"consultacnpj/internal/models"
)

// recentHistory is the number of snapshots shown on the home page.
const recentHistory = 30

// HistoryLister lists stored snapshots, newest first.
type HistoryLister interface {
	ListHistory(ctx context.Context, limit int) ([]models.History, error)
}

// HomeHandler renders the pages of the web UI.
type HomeHandler struct {
	jobs    *jobs.Manager
	history HistoryLister
	cfg     *config.Config
}

// NewHomeHandler creates a new home handler.
func NewHomeHandler(manager *jobs.Manager, history HistoryLister, cfg *config.Config) *HomeHandler {
	return &HomeHandler{jobs: manager, history: history, cfg: cfg}
}

// Index renders the lookup page with the caller's job and recent history.
func (h *HomeHandler) Index(c fiber.Ctx) error {
	user, _ := middleware.CurrentUser(c)

	data := fiber.Map{
		"Title": "Consulta CNPJ",
		"User":  user,
	}

	if user != nil {
		if snap, err := h.jobs.Status(user.OwnerKey()); err == nil {
			data["Job"] = snap
		}
		data["Results"] = h.jobs.Results(user.OwnerKey())
	}

	history, err := h.history.ListHistory(c.Context(), recentHistory)
	if err != nil {
		slog.Warn("failed to list history", "error", err)
	}
	data["History"] = history

	return c.Render("home", data)
}

// Login renders the login page, or sends the user home when no login is
// needed.
func (h *HomeHandler) Login(c fiber.Ctx) error {
	if !h.cfg.OIDCEnabled() && h.cfg.IsDev() {
		return c.Redirect().To("/")
	}
	return c.Render("login", fiber.Map{
		"Title":       "Login",
		"OIDCEnabled": h.cfg.OIDCEnabled(),
	})
}
