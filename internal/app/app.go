// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/JakeFAU/echigo-image-server/internal/api"
	"github.com/JakeFAU/echigo-image-server/internal/config"
	collyfetcher "github.com/JakeFAU/echigo-image-server/internal/fetcher/colly"
	"github.com/JakeFAU/echigo-image-server/internal/logging"
	"github.com/JakeFAU/echigo-image-server/internal/mcptool"
	"github.com/JakeFAU/echigo-image-server/internal/metrics"
	"github.com/JakeFAU/echigo-image-server/internal/policy/ratelimit"
	"github.com/JakeFAU/echigo-image-server/internal/resolver"
)

// App holds the shared services for one process: logger, resolver, the MCP server,
// and the HTTP router that fronts it.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	resolver *resolver.Resolver
	mcp      *server.MCPServer
	api      *api.Server
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetResolver exposes the image resolver for one-off lookups.
func (a *App) GetResolver() *resolver.Resolver {
	return a.resolver
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// NewApp builds every service from cfg. It fails fast if the logger cannot be created.
func NewApp(cfg config.Config, version string) (*App, error) {
	logger, err := logging.NewWithOptions(logging.Options{
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewAppWithLogger(cfg, version, logger), nil
}

// NewAppWithLogger is NewApp with an injected logger.
func NewAppWithLogger(cfg config.Config, version string, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RateLimitRPS,
		DefaultBurst: cfg.HTTP.RateLimitBurst,
	})
	fetcher := ratelimit.Wrap(collyfetcher.New(fetcherConfig(cfg)), limiter)
	res := resolver.New(fetcher, logger.Named("resolver"))

	tool := mcptool.NewTool(res, logger.Named("tool"))
	mcpServer := mcptool.NewServer(tool, version)
	apiServer := api.NewServer(mcptool.NewHTTPHandler(mcpServer), cfg, logger.Named("api"))

	logger.Info("application services initialized",
		zap.String("version", version),
		zap.Bool("restrict_host", cfg.HTTP.RestrictHost),
		zap.Float64("rate_limit_rps", cfg.HTTP.RateLimitRPS),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	return &App{
		cfg:      cfg,
		logger:   logger,
		resolver: res,
		mcp:      mcpServer,
		api:      apiServer,
	}
}

// fetcherConfig limits outbound requests and redirects to the shop's hosts when
// restrict_host is set.
func fetcherConfig(cfg config.Config) collyfetcher.Config {
	fc := collyfetcher.Config{
		UserAgent:   resolver.UserAgent,
		Timeout:     resolver.FetchTimeout,
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	}
	if cfg.HTTP.RestrictHost {
		fc.AllowedDomains = []string{resolver.AllowedHost, resolver.ApexHost}
	}
	return fc
}

// Serve listens on the configured address until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Addr(), err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener serves HTTP on ln until ctx is canceled, then drains in-flight
// requests for up to the configured shutdown timeout.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close flushes the logger.
func (a *App) Close() {
	// Sync on a console-backed logger commonly fails with EINVAL; nothing to act on.
	_ = a.logger.Sync()
}
