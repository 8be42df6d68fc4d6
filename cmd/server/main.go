package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"

	"consultacnpj/internal/app"
	"consultacnpj/internal/batch"
	"consultacnpj/internal/config"
	"consultacnpj/internal/db"
	"consultacnpj/internal/jobs"
	"consultacnpj/internal/metrics"
	"consultacnpj/internal/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.IsDev() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}
	logger := slog.Default()

	yamlCfg, err := config.LoadYAMLConfig(cfg.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config file %s: %v", cfg.ConfigFile, err)
	}
	if yamlCfg != nil {
		log.Printf("Loaded overrides from %s", cfg.ConfigFile)
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	sharedStore, redis, err := app.OpenStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open shared store: %v", err)
	}
	defer sharedStore.Close()

	stack, err := app.NewStack(cfg, sharedStore, logger)
	if err != nil {
		log.Fatalf("Failed to initialize lookup client: %v", err)
	}
	log.Printf("Provider key %s, strategy %s", cfg.MaskedAPIKey(), stack.Lookup.Config().Strategy)

	credits := jobs.NewCredits(stack.Client, sharedStore, cfg.CreditsRefresh, logger)
	go credits.Start(ctx)

	manager := jobs.NewManager(stack.Lookup, database,
		jobs.WithStepDelay(cfg.StepDelay),
		jobs.WithLogger(logger),
		jobs.WithFinalizeHook(credits.RefreshAsync),
	)

	metrics.Init(manager, database)

	var storage fiber.Storage
	deps := server.Deps{
		DB:            database,
		Jobs:          manager,
		Credits:       credits,
		Extractor:     batch.NewExtractor(yamlCfg.IdentifierHeaders(), yamlCfg.TagHeaders()),
		Extensions:    yamlCfg.AllowedExtensions(batch.SupportedExtensions),
		Client:        stack.Client,
		LookupOptions: app.PrimaryOptions(stack.Lookup.Config()),
	}
	if redis != nil {
		storage = redis.Fiber()
		deps.Store = redis
		log.Println("Using Redis for sessions, rate limits and caches")
	}

	srv := server.New(cfg, storage)
	if err := srv.RegisterRoutes(ctx, deps); err != nil {
		if errors.Is(err, server.ErrOIDCRequired) {
			log.Fatal("OIDC_ISSUER is required. All users must be authenticated.")
		}
		log.Fatalf("Failed to register routes: %v", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()
	if err := srv.Shutdown(); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
