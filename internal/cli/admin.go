package cli

import (
	"github.com/gluk-w/cohub/internal/admin"
	"github.com/gluk-w/cohub/internal/config"
	"github.com/gluk-w/cohub/internal/console"
	"github.com/spf13/cobra"
)

func newAdminCmd(a *app) *cobra.Command {
	var watch bool
	var output string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Show every user's sessions and all scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if output != console.FormatTable {
				ov, err := a.reg.AdminOverview(ctx)
				if err != nil {
					return err
				}
				return console.Encode(cmd.OutOrStdout(), output, ov)
			}
			agg := &admin.Aggregator{Fetcher: a.reg, View: a.con}
			if watch {
				a.con.Live = true
				agg.Watch(ctx, config.Cfg.PollInterval)
				return nil
			}
			return agg.Refresh(ctx)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep the overview on screen and refresh it")
	cmd.Flags().StringVarP(&output, "output", "o", console.FormatTable, "Output format: table, json or yaml")
	return cmd
}
