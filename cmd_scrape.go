package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/export"
)

// addRunFlags binds the run parameters to flags, defaulting to the
// environment configuration.
func addRunFlags(cmd *cobra.Command, p *config.RunParams) {
	f := cmd.Flags()
	f.Float64Var(&p.Latitude, "lat", p.Latitude, "search center latitude")
	f.Float64Var(&p.Longitude, "lon", p.Longitude, "search center longitude")
	f.Float64Var(&p.RadiusKm, "radius-km", p.RadiusKm, "search radius in kilometers")
	f.StringVar(&p.Query, "query", p.Query, "free-text search query")
	f.StringVar(&p.Category, "category", p.Category, "vehicles, motorcycles or all")
	f.IntVar(&p.MaxItems, "max-items", p.MaxItems, "stop after this many listings (0 = no cap)")
	f.BoolVar(&p.Headless, "headless", p.Headless, "run the browser without a window")
	f.BoolVar(&p.Details, "details", p.Details, "open every listing's detail page")
	f.IntVar(&p.DetailsConcurrency, "details-concurrency", p.DetailsConcurrency, "accepted for compatibility; details are fetched one at a time")
	f.StringVar(&p.StorageStatePath, "storage-state", p.StorageStatePath, "session snapshot file")
}

func newScrapeCmd(a *app) *cobra.Command {
	params := a.cfg.Run
	var out string
	var exportNew, exportPrices bool

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one crawl and store the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			res, runErr := a.newOrchestrator(store).Run(ctx, params)
			if res == nil {
				return runErr
			}

			if out != "" || exportNew || exportPrices {
				exporter, err := a.newExporter(ctx, store)
				if err != nil {
					return err
				}
				if out != "" {
					if _, err := exporter.Listings(ctx, res.Listings, out); err != nil {
						a.logger.Error("Export of run results failed", zap.Error(err))
					}
				}
				if exportNew {
					if _, err := exporter.NewSince(ctx, res.Run.StartedAt, export.FileName("new", res.Run.StartedAt)); err != nil {
						a.logger.Error("Export of new listings failed", zap.Error(err))
					}
				}
				if exportPrices {
					if _, err := exporter.Prices(ctx, "", export.FileName("prices", time.Now())); err != nil {
						a.logger.Error("Export of price history failed", zap.Error(err))
					}
				}
			}

			if runErr != nil {
				return fmt.Errorf("run %s: %w", res.Run.ID, runErr)
			}
			return nil
		},
	}

	addRunFlags(cmd, &params)
	cmd.Flags().StringVar(&out, "out", "", "write this run's listings to a CSV file")
	cmd.Flags().BoolVar(&exportNew, "export-new", false, "export listings first seen during this run")
	cmd.Flags().BoolVar(&exportPrices, "export-prices", false, "export the full price history")
	return cmd
}
