package cli

import (
	"fmt"

	"github.com/gluk-w/cohub/internal/logging"
	"github.com/spf13/cobra"
)

func newLogsCmd(a *app) *cobra.Command {
	var lines int
	var truncate bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the local client log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if truncate {
				if err := logging.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Log cleared")
				return nil
			}
			tail, err := logging.ReadTail(lines)
			if err != nil {
				return err
			}
			if tail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), tail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of lines to show")
	cmd.Flags().BoolVar(&truncate, "clear", false, "Truncate the log file")
	return cmd
}
