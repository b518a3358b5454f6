package main

import (
	"os"

	"github.com/spf13/cobra"

	"mkt_tracker/scraper"
)

func newLoginCmd(a *app) *cobra.Command {
	path := a.cfg.Run.StorageStatePath

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in by hand and save the session snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pc := scraper.NewPageController(a.cfg.Site, a.cfg.Browser, a.logger)
			defer pc.Close()

			return pc.Start(cmd.Context(), scraper.StartOptions{
				Headless:         false,
				StorageStatePath: path,
				Confirm:          scraper.LineConfirmer{R: os.Stdin, W: os.Stdout},
				ForceLogin:       true,
			})
		},
	}
	cmd.Flags().StringVar(&path, "storage-state", path, "session snapshot file")
	return cmd
}
