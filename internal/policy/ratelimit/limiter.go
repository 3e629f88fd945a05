// Package ratelimit throttles outbound page fetches with a per-host token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/echigo-image-server/internal/metrics"
	"github.com/JakeFAU/echigo-image-server/internal/resolver"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables throttling.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// An immediately available token is not a delay worth recording.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Fetcher gates another resolver.Fetcher behind a Limiter.
type Fetcher struct {
	next    resolver.Fetcher
	limiter *Limiter
}

// Wrap returns next throttled by l.
func Wrap(next resolver.Fetcher, l *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: l}
}

// Fetch waits for a token and then delegates. A wait cut short by the context
// surfaces as a fetch error. Downstream errors pass through untouched because their
// text ends up in the caller-facing message.
func (f *Fetcher) Fetch(ctx context.Context, req resolver.FetchRequest) (resolver.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, req.URL); err != nil {
		return resolver.FetchResponse{}, err
	}
	return f.next.Fetch(ctx, req) //nolint:wrapcheck // error text is user-visible
}
