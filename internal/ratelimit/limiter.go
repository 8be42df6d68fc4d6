// Package ratelimit coordinates a call budget per fixed time window across
// every process sharing the same counter store.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"consultacnpj/internal/store"
)

// DefaultEpsilon is added to waits so a retry lands inside the next window.
const DefaultEpsilon = 50 * time.Millisecond

// Counter is the part of the shared store the limiter needs. Stores that also
// implement store.Incrementer get atomic increments; others fall back to
// read-then-set.
type Counter interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Limiter is a best-effort fixed-window limiter. It fails open: when the
// store errors the caller proceeds without waiting.
type Limiter struct {
	store   Counter
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	epsilon time.Duration
	onWait  func(scope string, d time.Duration)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithOnWait registers a callback invoked before each blocking wait.
func WithOnWait(fn func(scope string, d time.Duration)) Option {
	return func(l *Limiter) { l.onWait = fn }
}

// New creates a limiter over the given counter store.
func New(counter Counter, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		store:   counter,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		epsilon: DefaultEpsilon,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until a slot is available for scope in the current window
// of the given length, then takes it. It only returns an error when ctx ends
// while waiting.
func (l *Limiter) Acquire(ctx context.Context, scope string, limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return nil
	}
	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}

	for {
		now := l.now()
		windowID := now.Unix() / windowSecs
		key := fmt.Sprintf("ratelimit:%s:%d", scope, windowID)
		remaining := time.Unix((windowID+1)*windowSecs, 0).Sub(now)

		count, found, err := l.read(ctx, key)
		if err != nil {
			l.logger.Warn("rate limiter store unavailable, proceeding", "scope", scope, "error", err)
			return nil
		}
		if !found {
			if err := l.store.Set(ctx, key, []byte("0"), remaining); err != nil {
				l.logger.Warn("rate limiter store unavailable, proceeding", "scope", scope, "error", err)
				return nil
			}
		}

		if count < limit {
			n, err := l.increment(ctx, key, count, remaining)
			if err != nil {
				l.logger.Warn("rate limiter increment failed, proceeding", "scope", scope, "error", err)
				return nil
			}
			if n <= int64(limit) {
				return nil
			}
			// Lost a race for the last slot.
		}

		wait := remaining + l.epsilon
		l.logger.Info("rate limit reached, waiting for next window", "scope", scope, "limit", limit, "wait", wait)
		if l.onWait != nil {
			l.onWait(scope, wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) read(ctx context.Context, key string) (int, bool, error) {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if raw == nil {
		return 0, false, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false, fmt.Errorf("corrupt counter %s: %w", key, err)
	}
	return n, true, nil
}

func (l *Limiter) increment(ctx context.Context, key string, current int, ttl time.Duration) (int64, error) {
	if inc, ok := l.store.(store.Incrementer); ok {
		return inc.Incr(ctx, key)
	}
	next := current + 1
	if err := l.store.Set(ctx, key, []byte(strconv.Itoa(next)), ttl); err != nil {
		return 0, err
	}
	return int64(next), nil
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
