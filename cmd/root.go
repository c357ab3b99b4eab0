// Package cmd defines the CLI commands for the creatorcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-crawler/internal/config"
	"github.com/JakeFAU/creator-crawler/internal/crawler"
	"github.com/JakeFAU/creator-crawler/internal/logging"
	"github.com/JakeFAU/creator-crawler/internal/server"
	"github.com/JakeFAU/creator-crawler/internal/session"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands need from the wired application.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Submit(ctx context.Context, req crawler.JobRequest) (crawler.Report, error)
	CheckLogin(ctx context.Context, account string, opts session.Options) (bool, error)
	Login(ctx context.Context, account string, opts session.Options) error
}

// service owns the logger alongside the wired application.
type service struct {
	*server.App
	logger *zap.Logger
}

func (s *service) Close(ctx context.Context) error {
	err := s.App.Close(ctx)
	if syncErr := logging.Sync(s.logger); syncErr != nil {
		fmt.Fprintln(os.Stderr, syncErr)
	}
	return err
}

// newApp builds the application from a config path. Tests replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Service:     cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		_ = logging.Sync(logger)
		return nil, err
	}
	return &service{App: app, logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "creatorcrawler",
		Short: "Single-flight crawler for Xiaohongshu creator notes.",
		Long: `creatorcrawler collects the notes published by a list of Xiaohongshu
creators. Jobs run one at a time, in batches, rotating across the logged-in
accounts, and the results are deduplicated into a single report.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				return appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus CRAWLER_* environment when empty)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newCheckLoginCmd())
	cmd.AddCommand(newLoginCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
