package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// NewPacer returns a local limiter that spaces successive calls by at least
// interval. It is used between batch steps of a single job, on top of the
// shared per-window budget. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
