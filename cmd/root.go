// Package cmd defines and implements the CLI commands for the screencrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-screenshot-crawler/internal/app"
	"github.com/JakeFAU/site-screenshot-crawler/internal/config"
	"github.com/JakeFAU/site-screenshot-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests swap it to inject options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. The application built
// before the subcommand runs is stored in built so the caller can close it
// whether or not the subcommand succeeded.
func newRootCmd(built **app.App) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "screencrawler",
		Short: "Captures full-page screenshots of a site and the pages it links to.",
		Long: `screencrawler opens a seed URL in headless Chrome, captures it, discovers
the same-origin links on the page and captures each of them for every
configured device profile. It runs one-off crawls from the command line,
batch crawls over a stored domain list, or an HTTP service that queues
capture jobs.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			*built = appInstance
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and SCREENCRAWLER_* env vars apply without one)")

	cmd.AddCommand(
		newCrawlCmd(),
		newBulkCmd(),
		newServeCmd(),
		newDomainsCmd(),
		newGalleryCmd(),
		newLogsCmd(),
	)
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so crawls stop at the next link boundary.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run executes the command line in args and shuts the application down
// afterwards.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var appInstance *app.App
	root := newRootCmd(&appInstance)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if appInstance != nil {
		if err != nil {
			appInstance.Logger().Error("command execution failed", zap.Error(err))
		}
		appInstance.Close()
		_ = appInstance.Logger().Sync()
	}
	return err
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
