package cnpja

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingAPIKey is returned at construction when no credential is configured.
	ErrMissingAPIKey = errors.New("CNPJA_API_KEY is not configured")

	// ErrTransient wraps timeouts and connection failures that are worth retrying.
	ErrTransient = errors.New("transient network error")
)

// UpstreamError is a non-200 response from the provider.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports a missing record, which for a cache-only request means
// the provider holds no cached copy.
func (e *UpstreamError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRateLimited reports the provider's rate limit signal.
func (e *UpstreamError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// AsUpstreamError unwraps err into an UpstreamError.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr, true
	}
	return nil, false
}
