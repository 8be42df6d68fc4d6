package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/store"
)

const (
	creditsCacheKey = "cnpja:credits"
	creditsCacheTTL = 24 * time.Hour
)

// CreditsFetcher reads the provider's credit balance.
type CreditsFetcher interface {
	Credits(ctx context.Context) (cnpja.Document, error)
}

// Credits keeps a cached copy of the provider's credit balance and refreshes
// it in the background.
type Credits struct {
	client   CreditsFetcher
	cache    store.Store
	interval time.Duration
	logger   *slog.Logger
}

// NewCredits creates a credits refresher.
func NewCredits(client CreditsFetcher, cache store.Store, interval time.Duration, logger *slog.Logger) *Credits {
	if logger == nil {
		logger = slog.Default()
	}
	return &Credits{
		client:   client,
		cache:    cache,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the refresh loop until ctx is done. A non-positive interval
// disables the loop; Get still fetches on demand.
func (c *Credits) Start(ctx context.Context) {
	if c.interval <= 0 {
		c.logger.Info("credits refresher disabled", "interval", c.interval)
		return
	}
	c.logger.Info("credits refresher started", "interval", c.interval)

	// Run immediately on start
	c.refreshQuietly(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("credits refresher stopped")
			return
		case <-ticker.C:
			c.refreshQuietly(ctx)
		}
	}
}

// Get returns the cached balance, fetching it when absent or when force is
// set. A stale copy is served if the fetch fails.
func (c *Credits) Get(ctx context.Context, force bool) (cnpja.Document, error) {
	cached := c.cached(ctx)
	if cached != nil && !force {
		return cached, nil
	}

	fresh, err := c.Refresh(ctx)
	if err != nil {
		if cached != nil {
			c.logger.Warn("serving cached credits after refresh failure", "error", err)
			return cached, nil
		}
		return nil, err
	}
	return fresh, nil
}

// Refresh fetches the balance and stores it in the cache.
func (c *Credits) Refresh(ctx context.Context) (cnpja.Document, error) {
	doc, err := c.client.Credits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credits: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credits: %w", err)
	}
	if err := c.cache.Set(ctx, creditsCacheKey, raw, creditsCacheTTL); err != nil {
		c.logger.Warn("failed to cache credits", "error", err)
	}
	return doc, nil
}

// RefreshAsync refreshes in the background without blocking the caller.
func (c *Credits) RefreshAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c.refreshQuietly(ctx)
	}()
}

func (c *Credits) refreshQuietly(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("credits refresh failed", "error", err)
	}
}

func (c *Credits) cached(ctx context.Context) cnpja.Document {
	raw, err := c.cache.Get(ctx, creditsCacheKey)
	if err != nil || raw == nil {
		return nil
	}
	var doc cnpja.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}
