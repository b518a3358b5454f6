package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mkt_tracker/export"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored data to CSV",
	}
	cmd.AddCommand(newExportNewCmd(a), newExportPricesCmd(a))
	return cmd
}

func newExportNewCmd(a *app) *cobra.Command {
	var since, out string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Export listings first seen since a point in time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			exporter, err := a.newExporter(ctx, store)
			if err != nil {
				return err
			}
			if out == "" {
				out = export.FileName("new", time.Now())
			}
			path, err := exporter.NewSince(ctx, start, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "24h", "RFC 3339 timestamp or a duration back from now")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: timestamped name in EXPORT_DIR)")
	return cmd
}

func newExportPricesCmd(a *app) *cobra.Command {
	var itemID, out string

	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Export price history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			exporter, err := a.newExporter(ctx, store)
			if err != nil {
				return err
			}
			if out == "" {
				out = export.FileName("prices", time.Now())
			}
			path, err := exporter.Prices(ctx, itemID, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "only this item id")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: timestamped name in EXPORT_DIR)")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent crawl runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tFOUND\tNEW\tPRICE CHANGES\tSKIPPED\tERRORS")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status,
					r.ListingsFound, r.ListingsNew, r.PriceChanges, r.URLsSkipped, r.ErrorsCount)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

// parseSince accepts an RFC 3339 timestamp or a duration counted back from
// now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q: want RFC 3339 time or duration", s)
	}
	return now.Add(-d), nil
}
