package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mkt_tracker/export"
	"mkt_tracker/metrics"
	"mkt_tracker/scheduler"
	"mkt_tracker/scraper"
)

func newWatchCmd(a *app) *cobra.Command {
	params := a.cfg.Run
	schedule := a.cfg.Scheduler
	var exportNew, now bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Crawl on a schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			orch := a.newOrchestrator(store)
			if schedule.MetricsAddr != "" {
				orch.SetObserver(metrics.NewMetrics(prometheus.DefaultRegisterer))
				go func() {
					if err := metrics.Serve(ctx, schedule.MetricsAddr, prometheus.DefaultGatherer, a.logger); err != nil {
						a.logger.Error("Metrics server stopped", zap.Error(err))
					}
				}()
			}

			sched := scheduler.New(schedule, params, orch, a.logger)
			if exportNew {
				exporter, err := a.newExporter(ctx, store)
				if err != nil {
					return err
				}
				sched.OnRun(func(ctx context.Context, res *scraper.RunResult, _ error) {
					if res == nil {
						return
					}
					name := export.FileName("new", res.Run.StartedAt)
					if _, err := exporter.NewSince(ctx, res.Run.StartedAt, name); err != nil {
						a.logger.Error("Export of new listings failed", zap.Error(err))
					}
				})
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}
			if now {
				sched.TriggerNow(ctx)
			}

			a.logger.Info("Watching. Press Ctrl+C to stop.")
			<-ctx.Done()

			a.logger.Info("Shutting down...")
			sched.Stop()
			return nil
		},
	}

	addRunFlags(cmd, &params)
	cmd.Flags().StringVar(&schedule.Cron, "cron", schedule.Cron, "cron expression (overrides --interval)")
	cmd.Flags().DurationVar(&schedule.Interval, "interval", schedule.Interval, "time between runs")
	cmd.Flags().BoolVar(&exportNew, "export-new", false, "export new listings after each run")
	cmd.Flags().StringVar(&schedule.MetricsAddr, "metrics-addr", schedule.MetricsAddr, "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().BoolVar(&now, "now", false, "run once immediately before waiting for the schedule")
	return cmd
}
