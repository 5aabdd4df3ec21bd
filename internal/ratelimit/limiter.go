// Package ratelimit enforces minimum inter-request spacing per target host
// and across the whole run.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumira/research-crawler/internal/telemetry"
)

// Limiter manages the global limiter plus one limiter per target key.
// Acquire blocks until both grant a token, so whichever is more restrictive
// wins. Waits are cancellable through the context.
type Limiter struct {
	mu      sync.Mutex
	targets map[string]*rate.Limiter
	global  *rate.Limiter
	spacing time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestDelay is the minimum spacing between granted acquisitions for
	// a single target and globally. Zero disables limiting.
	RequestDelay time.Duration
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	return &Limiter{
		targets: make(map[string]*rate.Limiter),
		global:  rate.NewLimiter(limit, 1),
		spacing: cfg.RequestDelay,
	}
}

// Acquire blocks the caller until at least the configured delay has elapsed
// since the last grant for targetKey and since the last global grant.
func (l *Limiter) Acquire(ctx context.Context, targetKey string) error {
	if targetKey == "" {
		targetKey = "unknown"
	}

	l.mu.Lock()
	target, ok := l.targets[targetKey]
	if !ok {
		limit := rate.Inf
		if l.spacing > 0 {
			limit = rate.Every(l.spacing)
		}
		target = rate.NewLimiter(limit, 1)
		l.targets[targetKey] = target
	}
	l.mu.Unlock()

	start := time.Now()
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait (global): %w", err)
	}
	if err := target.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait (%s): %w", targetKey, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(targetKey, waited)
	}
	return nil
}
