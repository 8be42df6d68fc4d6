// Package testutil provides test utilities and helpers.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"consultacnpj/internal/lookup"
	"consultacnpj/internal/models"
	"consultacnpj/internal/validation"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Resolver resolves every identifier successfully without network access.
// Name, when set, is used as the display name of every result.
type Resolver struct {
	Name string

	mu    sync.Mutex
	calls []string
}

// Resolve returns a successful result whose details echo the identifier.
func (r *Resolver) Resolve(_ context.Context, raw string, _ lookup.RetryFunc) models.LookupResult {
	r.mu.Lock()
	r.calls = append(r.calls, raw)
	r.mu.Unlock()

	name := r.Name
	if name == "" {
		name = "Empresa " + raw
	}
	return models.LookupResult{
		CNPJ:    validation.FormatCNPJ(raw),
		Name:    name,
		Email:   models.NoEmail,
		Details: map[string]any{"taxId": raw},
	}
}

// Calls returns the identifiers resolved so far, in order.
func (r *Resolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Requests builds lookup requests without tags.
func Requests(ids ...string) []models.LookupRequest {
	reqs := make([]models.LookupRequest, len(ids))
	for i, id := range ids {
		reqs[i] = models.LookupRequest{CNPJ: id}
	}
	return reqs
}
