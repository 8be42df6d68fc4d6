package server

import (
	"context"
	"errors"

	"consultacnpj/internal/batch"
	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/db"
	"consultacnpj/internal/handlers"
	"consultacnpj/internal/handlers/api"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/metrics"
	"consultacnpj/internal/middleware"
)

// ErrOIDCRequired is returned when login is not configured outside
// development.
var ErrOIDCRequired = errors.New("OIDC_ISSUER is required outside development")

// Deps are the services the routes are served from.
type Deps struct {
	DB *db.DB
	// Store is pinged by the readiness probe when the shared store is remote.
	Store handlers.Pinger

	Jobs       *jobs.Manager
	Credits    *jobs.Credits
	Extractor  *batch.Extractor
	Extensions []string

	Client        *cnpja.Client
	LookupOptions cnpja.FetchOptions
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(ctx context.Context, deps Deps) error {
	authMiddleware := middleware.NewAuthMiddleware(deps.DB, s.Cfg)

	probeHandler := handlers.NewProbeHandler(deps.DB, deps.Store)
	homeHandler := handlers.NewHomeHandler(deps.Jobs, deps.DB, s.Cfg)
	exportHandler := handlers.NewExportHandler(deps.Jobs, deps.DB)

	jobHandler := api.NewJobHandler(deps.Jobs, deps.Extractor, deps.Extensions, int64(s.Cfg.UploadMaxBytes))
	lookupHandler := api.NewLookupHandler(deps.Client, deps.LookupOptions)
	detailsHandler := api.NewDetailsHandler(deps.Jobs, deps.DB)
	creditsHandler := api.NewCreditsHandler(deps.Credits)
	historyHandler := api.NewHistoryHandler(deps.DB)

	s.App.Get("/healthz", probeHandler.Liveness)
	s.App.Get("/readyz", probeHandler.Readiness)
	s.App.Get("/metrics", metrics.Handler())

	switch {
	case s.Cfg.OIDCEnabled():
		authHandler, err := handlers.NewAuthHandler(ctx, s.Cfg, deps.DB)
		if err != nil {
			return err
		}
		s.App.Get("/auth/login", authHandler.Login)
		s.App.Get("/auth/callback", authHandler.Callback)
		s.App.Get("/auth/logout", authHandler.Logout)
	case !s.Cfg.IsDev():
		return ErrOIDCRequired
	}

	s.App.Get("/login", homeHandler.Login)

	// Frontend routes
	s.App.Get("/", authMiddleware.RequireAuth, homeHandler.Index)
	s.App.Get("/export/results.:format", authMiddleware.RequireAuth, exportHandler.Results)
	s.App.Get("/export/history.:format", authMiddleware.RequireAuth, exportHandler.History)

	// JSON API
	apiGroup := s.App.Group("/api", authMiddleware.RequireAPIAuth)
	apiGroup.Get("/cnpj/:cnpj", lookupHandler.Lookup)
	apiGroup.Get("/details/:cnpj", detailsHandler.Details)
	apiGroup.Get("/credits", creditsHandler.Get)

	apiGroup.Post("/jobs/start", jobHandler.Start)
	apiGroup.Post("/jobs/step", jobHandler.Step)
	apiGroup.Get("/jobs/status", jobHandler.Status)
	apiGroup.Post("/jobs/pause", jobHandler.Pause)
	apiGroup.Post("/jobs/resume", jobHandler.Resume)
	apiGroup.Post("/jobs/cancel", jobHandler.Cancel)
	apiGroup.Post("/jobs/finalize", jobHandler.Finalize)
	apiGroup.Get("/jobs/retry-status", jobHandler.RetryStatus)

	apiGroup.Get("/history", historyHandler.List)
	apiGroup.Get("/history/:id", historyHandler.Get)
	apiGroup.Delete("/history", historyHandler.Clear)

	return nil
}
