// Package resolver maps an Echigo Sake Harasho product page URL to the page's main
// product image URL.
//
// Resolution is a single pass: allow-list check, one GET through a Fetcher, then the
// "#goods-img-basis img" selector with an og:image fallback. Failures are returned as
// *Error values whose Message is the text handed back to tool callers.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/echigo-image-server/internal/metrics"
)

const (
	// AllowedPrefix is the only URL prefix the resolver will fetch. It keeps the
	// tool from being pointed at arbitrary hosts.
	AllowedPrefix = "https://www.echigo.sake-harasho.com/view/item/"

	// AllowedHost is the host component of AllowedPrefix.
	AllowedHost = "www.echigo.sake-harasho.com"

	// ApexHost is the bare shop domain. The shop may redirect between it and AllowedHost.
	ApexHost = "echigo.sake-harasho.com"

	// UserAgent is sent on every page fetch.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/91.0.4472.124 Safari/537.36"

	// FetchTimeout bounds the page fetch.
	FetchTimeout = 10 * time.Second
)

// FetchRequest describes a single outbound page fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the raw result of a successful (2xx) fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// Truncated is set when Body was cut off at the fetcher's size cap.
	Truncated bool
}

// Fetcher performs the outbound GET. Implementations must return an error for
// transport failures and non-2xx statuses.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Match is a successful resolution.
type Match struct {
	URL      string
	Strategy Strategy
}

// Resolver resolves product image URLs. It holds no per-call state and is safe for
// concurrent use.
type Resolver struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// New builds a Resolver.
func New(fetcher Fetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Resolve returns the absolute image URL for productPageURL. On failure the error is
// always a *Error.
func (r *Resolver) Resolve(ctx context.Context, productPageURL string) (string, error) {
	match, err := r.ResolveDetailed(ctx, productPageURL)
	if err != nil {
		return "", err
	}
	return match.URL, nil
}

// ResolveDetailed is Resolve plus the strategy that matched.
func (r *Resolver) ResolveDetailed(ctx context.Context, productPageURL string) (Match, error) {
	start := time.Now()
	match, err := r.resolve(ctx, productPageURL)
	outcome := string(match.Strategy)
	var resErr *Error
	if errors.As(err, &resErr) {
		outcome = string(resErr.Kind)
	}
	metrics.ObserveResolution(outcome, time.Since(start))
	return match, err
}

func (r *Resolver) resolve(ctx context.Context, productPageURL string) (Match, error) {
	logger := r.logger.With(zap.String("url", productPageURL))

	if !strings.HasPrefix(productPageURL, AllowedPrefix) {
		logger.Info("rejected url outside allow-list")
		return Match{}, validationError()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()
	resp, err := r.fetcher.Fetch(fetchCtx, FetchRequest{
		URL:     productPageURL,
		Headers: http.Header{"User-Agent": {UserAgent}},
	})
	if err != nil {
		logger.Warn("page fetch failed", zap.Error(err))
		return Match{}, fetchError(err)
	}
	metrics.ObservePageFetch(resp.StatusCode, len(resp.Body), resp.Duration)
	if resp.Truncated {
		logger.Warn("page body truncated at size cap", zap.Int("bytes", len(resp.Body)))
	}

	found, err := extractImage(resp.Body, productPageURL)
	if err != nil {
		logger.Warn("image extraction failed", zap.Error(err))
		nf := notFoundError()
		nf.Err = err
		return Match{}, nf
	}
	if found.URL == "" {
		logger.Info("no image found on page", zap.Int("bytes", len(resp.Body)))
		return Match{}, notFoundError()
	}

	logger.Debug("resolved image url",
		zap.String("image_url", found.URL),
		zap.String("strategy", string(found.Strategy)),
	)
	return found, nil
}
