// Package cmd defines the CLI commands of the area listing scraper.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/config"
	"github.com/JakeFAU/area-listing-scraper/internal/logging"
	"github.com/JakeFAU/area-listing-scraper/internal/progress"
	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
	"github.com/JakeFAU/area-listing-scraper/internal/server"
)

// runtimeKeyType is the key for storing the loaded runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// appService is what commands need from the application. Tests inject a
// fake through newApp.
type appService interface {
	Run(ctx context.Context, areaID string, emit progress.Emitter) progress.Event
	Serve(ctx context.Context) error
	SweepSignals(ctx context.Context) (int, error)
	RequestCancel(ctx context.Context, token string) error
	ListAreas(ctx context.Context) ([]scraper.AreaRef, error)
	SeedAreas(ctx context.Context, path string) (int, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...server.Option) (appService, error) {
	return server.Build(ctx, cfg, logger, opts...)
}

// runtime carries what PersistentPreRunE loaded for subcommands.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Collects business listings for an area into spreadsheet reports.",
		Long: `scraper walks the paginated listing of an area, extracts every record's
contact details, classifies records into target and excluded sets, and writes
both sets as .xlsx reports. Jobs run from the HTTP server (serve) or directly
from the command line (scrape).`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			ctx := context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: &cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(
		newServeCmd(),
		newScrapeCmd(),
		newAreasCmd(),
		newSeedCmd(),
		newCancelCmd(),
		newSweepCmd(),
	)
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// withApp builds the application, runs fn, and closes the application.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app appService) error, opts ...server.Option) (err error) {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	app, err := newApp(cmd.Context(), rt.cfg, rt.logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
			err = fmt.Errorf("close application: %w", cerr)
		}
	}()
	return fn(cmd.Context(), app)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
