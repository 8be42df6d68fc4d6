// Package app assembles the lookup stack from configuration for the server
// and the command-line tool.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/config"
	"consultacnpj/internal/lookup"
	"consultacnpj/internal/metrics"
	"consultacnpj/internal/ratelimit"
	"consultacnpj/internal/store"
)

// memoryGCInterval is how often the in-process store drops expired keys.
const memoryGCInterval = time.Minute

// Stack is the wired lookup pipeline.
type Stack struct {
	Store  store.Store
	Redis  *store.Redis // nil when the store is in-process
	Client *cnpja.Client
	Lookup *lookup.Orchestrator
}

// OpenStore connects to Redis when configured and falls back to an
// in-process store otherwise.
func OpenStore(cfg *config.Config) (store.Store, *store.Redis, error) {
	if cfg.RedisURL == "" {
		return store.NewMemory(memoryGCInterval), nil, nil
	}
	r, err := store.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return r, r, nil
}

// LookupConfig builds the resolution policy from configuration.
func LookupConfig(cfg *config.Config) (lookup.Config, error) {
	strategy, err := cnpja.ParseStrategy(cfg.CNPJAStrategy)
	if err != nil {
		return lookup.Config{}, err
	}

	lc := lookup.DefaultConfig()
	lc.Strategy = strategy
	lc.MaxAgeDays = cfg.CNPJAMaxAgeDays
	lc.MaxStaleDays = cfg.CNPJAMaxStaleDays
	lc.CacheProbe = cfg.CNPJACacheProbe
	lc.Timeout = cfg.CNPJATimeout
	lc.RetryCount = cfg.LookupRetryCount
	lc.RetryWait = cfg.LookupRetryWait
	lc.RateLimit = cfg.CNPJARateLimitPerMin
	lc.ResultTTL = cfg.LookupCacheTTL
	return lc, nil
}

// PrimaryOptions are the fetch options of the configured strategy, used by
// single lookups that bypass the orchestrator.
func PrimaryOptions(lc lookup.Config) cnpja.FetchOptions {
	return cnpja.FetchOptions{
		Strategy:     lc.Strategy,
		MaxAgeDays:   lc.MaxAgeDays,
		MaxStaleDays: lc.MaxStaleDays,
		Timeout:      lc.Timeout,
	}
}

// NewStack wires the provider client, the shared rate limiter and the
// orchestrator over an opened store. Metrics are recorded when the
// collectors are registered.
func NewStack(cfg *config.Config, s store.Store, logger *slog.Logger) (*Stack, error) {
	lc, err := LookupConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := cnpja.New(cfg.CNPJAAPIKey, cfg.CNPJABaseURL,
		cnpja.WithObserver(func(strategy cnpja.Strategy, status string) {
			metrics.RecordUpstream(string(strategy), status)
		}),
	)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(s, logger,
		ratelimit.WithOnWait(func(string, time.Duration) { metrics.RecordRateLimitWait() }),
	)

	orchestrator := lookup.New(client, limiter, lc,
		lookup.WithCache(s),
		lookup.WithLogger(logger),
		lookup.WithRecorder(metrics.RecordLookup),
	)

	stack := &Stack{Store: s, Client: client, Lookup: orchestrator}
	if r, ok := s.(*store.Redis); ok {
		stack.Redis = r
	}
	return stack, nil
}
