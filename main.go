package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/export"
	"mkt_tracker/logging"
	"mkt_tracker/scraper"
	"mkt_tracker/services"
	"mkt_tracker/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{cfg: cfg, logger: logger}).ExecuteContext(ctx); err != nil {
		logger.Error("Command failed", zap.Error(err))
		return 1
	}
	return 0
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mkt_tracker",
		Short:         "Track vehicle and motorcycle listings and their prices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newScrapeCmd(a),
		newLoginCmd(a),
		newWatchCmd(a),
		newExportCmd(a),
		newRunsCmd(a),
	)
	return root
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	switch a.cfg.Storage.Driver {
	case "postgres", "postgresql":
		a.logger.Info("Connected to Postgres", zap.String("url", maskConnectionString(a.cfg.Storage.DatabaseURL)))
	default:
		a.logger.Info("SQLite database", zap.String("path", a.cfg.Storage.DBPath))
	}
	return store, nil
}

func (a *app) newOrchestrator(store storage.Store) *scraper.Orchestrator {
	confirm := scraper.LineConfirmer{R: os.Stdin, W: os.Stdout}
	launch := scraper.PlaywrightLauncher(a.cfg.Site, a.cfg.Browser, a.logger, confirm)
	return scraper.NewOrchestrator(a.cfg.Site, launch, services.NewListingService(store, a.logger), store, a.logger)
}

func (a *app) newExporter(ctx context.Context, store storage.Store) (*export.Exporter, error) {
	if a.cfg.S3.Bucket == "" {
		return export.NewExporter(store, nil, a.cfg.ExportDir, a.logger), nil
	}
	uploader, err := storage.NewS3Uploader(ctx, a.cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("s3 uploader: %w", err)
	}
	return export.NewExporter(store, uploader, a.cfg.ExportDir, a.logger), nil
}

// maskConnectionString hides the password in a connection URL for logging.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
