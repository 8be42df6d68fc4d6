package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/models"
	"consultacnpj/internal/store"
)

type response struct {
	doc cnpja.Document
	err error
}

// scriptedFetcher replays responses in order and records the strategies used.
type scriptedFetcher struct {
	mu         sync.Mutex
	responses  []response
	strategies []cnpja.Strategy
}

func (f *scriptedFetcher) Office(_ context.Context, _ string, opts cnpja.FetchOptions) (cnpja.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies = append(f.strategies, opts.Strategy)
	if len(f.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.doc, r.err
}

type countingAcquirer struct {
	calls int
	err   error
}

func (a *countingAcquirer) Acquire(context.Context, string, int, time.Duration) error {
	a.calls++
	return a.err
}

type panickingFetcher struct{}

func (panickingFetcher) Office(context.Context, string, cnpja.FetchOptions) (cnpja.Document, error) {
	panic("boom")
}

func upstream(status int, msg string) response {
	return response{err: &cnpja.UpstreamError{StatusCode: status, Message: msg}}
}

func transient() response {
	return response{err: fmt.Errorf("%w: i/o timeout", cnpja.ErrTransient)}
}

func ok(doc cnpja.Document) response {
	return response{doc: doc}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResultTTL = 0
	return cfg
}

func newTestOrchestrator(f Fetcher, a Acquirer, cfg Config, opts ...Option) (*Orchestrator, *[]time.Duration) {
	var slept []time.Duration
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	o := New(f, a, cfg, opts...)
	o.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return o, &slept
}

func TestResolveSuccessAfterCacheMiss(t *testing.T) {
	doc := cnpja.Document{
		"company": map[string]any{"name": "ACME LTDA"},
		"emails":  []any{map[string]any{"address": "a@b.com"}},
	}
	f := &scriptedFetcher{responses: []response{upstream(404, "not cached"), ok(doc)}}
	a := &countingAcquirer{}
	o, slept := newTestOrchestrator(f, a, testConfig())

	res := o.Resolve(context.Background(), "11222333000181", nil)

	assert.Equal(t, "11.222.333/0001-81", res.CNPJ)
	assert.Equal(t, "ACME LTDA", res.Name)
	assert.Equal(t, "a@b.com", res.Email)
	assert.False(t, res.Failed())
	assert.Equal(t, []cnpja.Strategy{cnpja.StrategyCache, cnpja.StrategyCacheIfFresh}, f.strategies)
	assert.Equal(t, 1, a.calls, "cache probe does not consume the rate budget")
	assert.Empty(t, *slept)
}

func TestResolveCacheProbeHit(t *testing.T) {
	f := &scriptedFetcher{responses: []response{ok(cnpja.Document{"name": "Fulano"})}}
	a := &countingAcquirer{}
	o, _ := newTestOrchestrator(f, a, testConfig())

	res := o.Resolve(context.Background(), "11222333000181", nil)

	assert.Equal(t, "Fulano", res.Name)
	assert.Equal(t, models.NoEmail, res.Email)
	assert.Zero(t, a.calls)
}

func TestResolveRateLimitedExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.CacheProbe = false
	f := &scriptedFetcher{responses: []response{
		upstream(429, "Too Many Requests"),
		upstream(429, "Too Many Requests"),
		upstream(429, "Too Many Requests"),
	}}
	var retries []int
	o, slept := newTestOrchestrator(f, &countingAcquirer{}, cfg)

	res := o.Resolve(context.Background(), "11222333000181", func(attempt int, wait time.Duration) {
		retries = append(retries, attempt)
		assert.Equal(t, 20*time.Second, wait)
	})

	assert.True(t, res.Failed())
	assert.Nil(t, res.Details)
	assert.Equal(t, models.UnknownName, res.Name)
	assert.Contains(t, res.Email, "limit exceeded")
	assert.Contains(t, res.Email, "429")
	assert.Equal(t, []int{1, 2}, retries, "no retry is announced after the last attempt")
	assert.Equal(t, []time.Duration{20 * time.Second, 20 * time.Second}, *slept, "no wait after the last attempt")
}

func TestResolveTransientThenSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.CacheProbe = false
	f := &scriptedFetcher{responses: []response{transient(), ok(cnpja.Document{"name": "X"})}}
	o, slept := newTestOrchestrator(f, &countingAcquirer{}, cfg)

	res := o.Resolve(context.Background(), "11222333000181", nil)

	assert.Equal(t, "X", res.Name)
	assert.Len(t, *slept, 1)
}

func TestResolveTerminalFailures(t *testing.T) {
	tests := []struct {
		name     string
		resp     response
		prefix   string
		contains string
	}{
		{"bad request", upstream(400, "invalid tax id"), models.UpstreamErrorLabel, "invalid tax id"},
		{"not found outside probe", upstream(404, "not found"), models.UpstreamErrorLabel, "404"},
		{"unexpected", response{err: errors.New("decode failure")}, models.UnexpectedLabel, "decode failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CacheProbe = false
			f := &scriptedFetcher{responses: []response{tt.resp}}
			o, slept := newTestOrchestrator(f, &countingAcquirer{}, cfg)

			res := o.Resolve(context.Background(), "11222333000181", nil)

			assert.True(t, res.Failed())
			assert.Equal(t, models.UnknownName, res.Name)
			assert.True(t, len(res.Email) > len(tt.prefix) && res.Email[:len(tt.prefix)] == tt.prefix, res.Email)
			assert.Contains(t, res.Email, tt.contains)
			assert.Len(t, f.strategies, 1, "terminal failures are not retried")
			assert.Empty(t, *slept)
		})
	}
}

func TestResolveLimiterCancelledIsTerminal(t *testing.T) {
	cfg := testConfig()
	cfg.CacheProbe = false
	f := &scriptedFetcher{}
	o, _ := newTestOrchestrator(f, &countingAcquirer{err: context.Canceled}, cfg)

	res := o.Resolve(context.Background(), "11222333000181", nil)

	assert.True(t, res.Failed())
	assert.Contains(t, res.Email, models.UnexpectedLabel)
	assert.Empty(t, f.strategies)
}

func TestResolveRecoversPanics(t *testing.T) {
	o, _ := newTestOrchestrator(panickingFetcher{}, nil, testConfig())

	res := o.Resolve(context.Background(), "11222333000181", nil)

	assert.True(t, res.Failed())
	assert.Contains(t, res.Email, "boom")
}

func TestResolveUsesResultCache(t *testing.T) {
	cfg := testConfig()
	cfg.CacheProbe = false
	cfg.ResultTTL = time.Hour
	cache := store.NewMemory(0)
	defer cache.Close()

	var outcomes []string
	f := &scriptedFetcher{responses: []response{ok(cnpja.Document{"name": "Cached Co"})}}
	o, _ := newTestOrchestrator(f, &countingAcquirer{}, cfg,
		WithCache(cache),
		WithRecorder(func(label string) { outcomes = append(outcomes, label) }))

	first := o.Resolve(context.Background(), "11222333000181", nil)
	second := o.Resolve(context.Background(), "11.222.333/0001-81", nil)

	require.Len(t, f.strategies, 1)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, []string{outcomeLabelSuccess, outcomeLabelCached}, outcomes)
}

func TestResolvePadsShortIdentifiers(t *testing.T) {
	cfg := testConfig()
	cfg.CacheProbe = false
	f := &scriptedFetcher{responses: []response{ok(cnpja.Document{})}}
	o, _ := newTestOrchestrator(f, nil, cfg)

	res := o.Resolve(context.Background(), "8708002000170", nil)

	assert.Equal(t, "08.708.002/0001-70", res.CNPJ)
	assert.Equal(t, models.UnknownName, res.Name)
	assert.False(t, res.Failed())
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name string
		doc  cnpja.Document
		want string
	}{
		{"address object", cnpja.Document{"emails": []any{map[string]any{"address": "a@b.com"}}}, "a@b.com"},
		{"empty list", cnpja.Document{"emails": []any{}}, models.NoEmail},
		{"missing", cnpja.Document{}, models.NoEmail},
		{"plain string", cnpja.Document{"emails": []any{"  x@y.com "}}, "x@y.com"},
		{"skips blanks", cnpja.Document{"emails": []any{map[string]any{"address": ""}, "c@d.com"}}, "c@d.com"},
		{"email key", cnpja.Document{"emails": []any{map[string]any{"email": "e@f.com"}}}, "e@f.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEmail(tt.doc))
		})
	}
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		name string
		doc  cnpja.Document
		want string
	}{
		{"company name", cnpja.Document{"company": map[string]any{"name": "A"}, "name": "B"}, "A"},
		{"top level", cnpja.Document{"company": map[string]any{}, "name": "B"}, "B"},
		{"neither", cnpja.Document{}, models.UnknownName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractName(tt.doc))
		})
	}
}
