// Package cnpja is a client for the CNPJá company registry API.
package cnpja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.cnpja.com"
	DefaultTimeout = 30 * time.Second
	userAgent      = "ConsultaCNPJ/1.0"

	// maxErrorBody bounds the upstream body kept in an UpstreamError.
	maxErrorBody = 500
)

// Strategy selects how the provider may use its own cache.
type Strategy string

const (
	// StrategyCache serves only from the provider cache and costs no credits.
	StrategyCache Strategy = "CACHE"
	// StrategyCacheIfFresh serves cached data younger than maxAge, else fetches live.
	StrategyCacheIfFresh Strategy = "CACHE_IF_FRESH"
	// StrategyCacheIfError fetches live and falls back to cache up to maxStale on failure.
	StrategyCacheIfError Strategy = "CACHE_IF_ERROR"
	// StrategyOnline always fetches live.
	StrategyOnline Strategy = "ONLINE"
)

// ParseStrategy validates a strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToUpper(strings.TrimSpace(s))); st {
	case StrategyCache, StrategyCacheIfFresh, StrategyCacheIfError, StrategyOnline:
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Document is a decoded JSON payload from the provider. Its shape varies
// between plans and endpoints, so fields are read defensively.
type Document map[string]any

// FetchOptions controls a single office lookup.
type FetchOptions struct {
	Strategy     Strategy
	MaxAgeDays   int
	MaxStaleDays int
	Timeout      time.Duration
}

// Client performs authenticated requests against the provider.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	observe func(strategy Strategy, status string)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver registers a callback invoked after every office request with
// the strategy used and the HTTP status (or "error").
func WithObserver(fn func(strategy Strategy, status string)) Option {
	return func(c *Client) { c.observe = fn }
}

// New creates a client. It fails with ErrMissingAPIKey when apiKey is empty.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Office fetches the registry record of a 14-digit identifier.
func (c *Client) Office(ctx context.Context, cnpj string, opts FetchOptions) (Document, error) {
	q := url.Values{}
	if opts.Strategy != "" {
		q.Set("strategy", string(opts.Strategy))
	}
	if opts.MaxAgeDays > 0 {
		q.Set("maxAge", strconv.Itoa(opts.MaxAgeDays))
	}
	if opts.MaxStaleDays > 0 {
		q.Set("maxStale", strconv.Itoa(opts.MaxStaleDays))
	}

	endpoint := c.baseURL + "/office/" + url.PathEscape(cnpj)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	doc, status, err := c.get(ctx, endpoint, opts.Timeout)
	if c.observe != nil {
		c.observe(opts.Strategy, status)
	}
	return doc, err
}

// Credits returns the account credit balance.
func (c *Client) Credits(ctx context.Context) (Document, error) {
	doc, _, err := c.get(ctx, c.baseURL+"/credit", 15*time.Second)
	return doc, err
}

func (c *Client) get(ctx context.Context, endpoint string, timeout time.Duration) (Document, string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "error", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "error", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, status, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		if isTimeout(err) {
			return nil, status, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
		}
		return nil, status, fmt.Errorf("failed to decode response: %w", err)
	}
	return doc, status, nil
}

// classifyTransportError maps timeouts and connection failures to
// ErrTransient. A cancelled parent context is returned as is.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: timeout: %v", ErrTransient, err)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: connection: %v", ErrTransient, err)
	}
	return fmt.Errorf("request failed: %w", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
