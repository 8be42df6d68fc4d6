// Package lookup resolves registry identifiers into LookupResults, combining
// a local result cache, the provider's cache tiers, a shared rate budget and
// bounded retries.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/models"
	"consultacnpj/internal/store"
	"consultacnpj/internal/validation"
)

// Fetcher performs one upstream request.
type Fetcher interface {
	Office(ctx context.Context, cnpj string, opts cnpja.FetchOptions) (cnpja.Document, error)
}

// Acquirer takes a slot from the shared rate budget.
type Acquirer interface {
	Acquire(ctx context.Context, scope string, limit int, window time.Duration) error
}

// RetryFunc is told about each retryable failure before the backoff wait.
type RetryFunc func(attempt int, wait time.Duration)

// Config holds the resolution policy.
type Config struct {
	Strategy     cnpja.Strategy
	MaxAgeDays   int
	MaxStaleDays int
	// CacheProbe prepends a zero-cost CACHE request before the primary strategy.
	CacheProbe bool
	Timeout    time.Duration

	RetryCount int
	RetryWait  time.Duration

	RateScope  string
	RateLimit  int
	RateWindow time.Duration

	// ResultTTL enables the local result cache when positive.
	ResultTTL time.Duration
}

// DefaultConfig mirrors the provider defaults used in production.
func DefaultConfig() Config {
	return Config{
		Strategy:     cnpja.StrategyCacheIfFresh,
		MaxAgeDays:   14,
		MaxStaleDays: 30,
		CacheProbe:   true,
		Timeout:      cnpja.DefaultTimeout,
		RetryCount:   3,
		RetryWait:    20 * time.Second,
		RateScope:    "cnpja",
		RateLimit:    60,
		RateWindow:   time.Minute,
		ResultTTL:    24 * time.Hour,
	}
}

// Orchestrator resolves identifiers one at a time. It is safe for concurrent
// use; coordination between callers happens in the Acquirer.
type Orchestrator struct {
	client  Fetcher
	limiter Acquirer
	cache   store.Store
	cfg     Config
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	record  func(outcome string)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables the local result cache tier.
func WithCache(s store.Store) Option {
	return func(o *Orchestrator) { o.cache = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder registers a callback receiving the final outcome label of
// every resolution.
func WithRecorder(fn func(outcome string)) Option {
	return func(o *Orchestrator) { o.record = fn }
}

// New creates an orchestrator. limiter may be nil to disable the shared budget.
func New(client Fetcher, limiter Acquirer, cfg Config, opts ...Option) *Orchestrator {
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 1
	}
	o := &Orchestrator{
		client:  client,
		limiter: limiter,
		cfg:     cfg,
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the resolution policy in use.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Resolve turns a raw identifier into a result. It never returns an error:
// failures are reported through the sentinel fields of the result so that a
// batch keeps going. onRetry may be nil.
func (o *Orchestrator) Resolve(ctx context.Context, raw string, onRetry RetryFunc) (res models.LookupResult) {
	cnpj := validation.CleanCNPJ(raw)
	formatted := validation.FormatCNPJ(cnpj)

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("lookup panicked", "cnpj", cnpj, "panic", rec)
			res = failure(formatted, models.UnexpectedLabel+truncate(fmt.Sprint(rec)))
			o.observe(outcomeLabelUnexpected)
		}
	}()

	if doc, ok := o.cached(ctx, cnpj); ok {
		o.observe(outcomeLabelCached)
		return success(formatted, doc)
	}

	steps := o.plan()
	var lastErr error

attempts:
	for attempt := 1; attempt <= o.cfg.RetryCount; attempt++ {
		out := o.runAttempt(ctx, cnpj, steps)

		switch out.kind {
		case outcomeSuccess:
			o.store(ctx, cnpj, out.doc)
			o.observe(outcomeLabelSuccess)
			return success(formatted, out.doc)

		case outcomeTerminal:
			o.logger.Warn("lookup failed", "cnpj", cnpj, "error", out.err)
			o.observe(out.label)
			return failure(formatted, out.message)

		case outcomeRetryable:
			lastErr = out.err
			o.logger.Info("retryable lookup failure", "cnpj", cnpj, "attempt", attempt, "of", o.cfg.RetryCount, "error", out.err)
			if attempt == o.cfg.RetryCount {
				break attempts
			}
			if onRetry != nil {
				onRetry(attempt, o.cfg.RetryWait)
			}
			if err := o.sleep(ctx, o.cfg.RetryWait); err != nil {
				lastErr = err
				break attempts
			}
		}
	}

	o.logger.Warn("lookup retries exhausted", "cnpj", cnpj, "error", lastErr)
	o.observe(outcomeLabelExhausted)
	return failure(formatted, exhaustedMessage(o.cfg.RetryCount, lastErr))
}

// runAttempt walks the strategy list once and reports the first outcome that
// ends the attempt.
func (o *Orchestrator) runAttempt(ctx context.Context, cnpj string, steps []step) outcome {
	last := outcome{kind: outcomeRetryable, err: errNoStrategy}
	for _, s := range steps {
		last = o.try(ctx, cnpj, s)
		if last.kind != outcomeNextStrategy {
			return last
		}
	}
	// Only the cache probe yields next-strategy and it is never last.
	return last
}

// try performs a single upstream request and classifies its result.
func (o *Orchestrator) try(ctx context.Context, cnpj string, s step) outcome {
	if !s.probe && o.limiter != nil {
		if err := o.limiter.Acquire(ctx, o.cfg.RateScope, o.cfg.RateLimit, o.cfg.RateWindow); err != nil {
			return unexpected(err)
		}
	}

	doc, err := o.client.Office(ctx, cnpj, s.opts)
	return classify(s, doc, err)
}

// plan builds the ordered strategy list for one attempt.
func (o *Orchestrator) plan() []step {
	steps := make([]step, 0, 2)
	if o.cfg.CacheProbe && o.cfg.Strategy != cnpja.StrategyCache {
		steps = append(steps, step{
			probe: true,
			opts:  cnpja.FetchOptions{Strategy: cnpja.StrategyCache, Timeout: o.cfg.Timeout},
		})
	}
	steps = append(steps, step{
		opts: cnpja.FetchOptions{
			Strategy:     o.cfg.Strategy,
			MaxAgeDays:   o.cfg.MaxAgeDays,
			MaxStaleDays: o.cfg.MaxStaleDays,
			Timeout:      o.cfg.Timeout,
		},
	})
	return steps
}

func (o *Orchestrator) cached(ctx context.Context, cnpj string) (cnpja.Document, bool) {
	if o.cache == nil || o.cfg.ResultTTL <= 0 {
		return nil, false
	}
	raw, err := o.cache.Get(ctx, cacheKey(cnpj))
	if err != nil {
		o.logger.Warn("result cache unavailable", "error", err)
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var doc cnpja.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		o.logger.Warn("discarding corrupt cached result", "cnpj", cnpj, "error", err)
		return nil, false
	}
	return doc, true
}

func (o *Orchestrator) store(ctx context.Context, cnpj string, doc cnpja.Document) {
	if o.cache == nil || o.cfg.ResultTTL <= 0 {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, cacheKey(cnpj), raw, o.cfg.ResultTTL); err != nil {
		o.logger.Warn("failed to cache result", "cnpj", cnpj, "error", err)
	}
}

func (o *Orchestrator) observe(label string) {
	if o.record != nil {
		o.record(label)
	}
}

func cacheKey(cnpj string) string {
	return "lookup:office:" + cnpj
}

func success(formatted string, doc cnpja.Document) models.LookupResult {
	return models.LookupResult{
		CNPJ:    formatted,
		Name:    ExtractName(doc),
		Email:   ExtractEmail(doc),
		Details: doc,
	}
}

func failure(formatted, message string) models.LookupResult {
	return models.LookupResult{
		CNPJ:  formatted,
		Name:  models.UnknownName,
		Email: message,
	}
}

func exhaustedMessage(attempts int, lastErr error) string {
	msg := fmt.Sprintf("%s after %d attempts", models.ExhaustedLabel, attempts)
	if lastErr != nil {
		msg += " (last error: " + truncate(lastErr.Error()) + ")"
	}
	return msg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
