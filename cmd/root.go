// Package cmd defines and implements the CLI commands for the echigo-image executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/echigo-image-server/internal/app"
	"github.com/JakeFAU/echigo-image-server/internal/config"
	"github.com/JakeFAU/echigo-image-server/internal/logging"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	Serve(ctx context.Context) error
	Resolve(ctx context.Context, productPageURL string) (string, error)
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Resolve(ctx context.Context, productPageURL string) (string, error) {
	return a.GetResolver().Resolve(ctx, productPageURL)
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.NewApp(cfg, Version)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "echigo-image",
		Short: "Product image lookup for Echigo Sake Harasho pages.",
		Long: `echigo-image resolves the main product image URL of an Echigo Sake Harasho
product page. It runs as an MCP server exposing the get_product_image_url tool,
or performs a single lookup from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,

		// Build the application once the flags are parsed, before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, err := resolveApp(cmd.Context()); err == nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newResolveCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	if ctx == nil {
		return nil, errors.New("application services not initialized")
	}
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		logger := logging.Fallback()
		logger.Error("command execution failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// exitError carries a process exit code without an extra log line; the command
// has already reported the failure.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}
