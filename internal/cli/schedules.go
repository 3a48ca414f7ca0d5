package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gluk-w/cohub/internal/console"
	"github.com/gluk-w/cohub/internal/schedules"
	"github.com/spf13/cobra"
)

func (a *app) schedules() *schedules.Controller {
	return &schedules.Controller{Registry: a.reg, Confirmer: a.con, View: a.con}
}

func newSchedulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"sched"},
		Short:   "Manage scheduled tasks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			return a.requireLogin()
		},
	}
	cmd.AddCommand(
		newSchedulesListCmd(a),
		newSchedulesAddCmd(a),
		newSchedulesToggleCmd(a, "on", true),
		newSchedulesToggleCmd(a, "off", false),
		newSchedulesDeleteCmd(a),
	)
	return cmd
}

func newSchedulesListCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List your scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != console.FormatTable {
				list, err := a.reg.ListSchedules(cmd.Context())
				if err != nil {
					return err
				}
				return console.Encode(cmd.OutOrStdout(), output, list)
			}
			return a.schedules().Refresh(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", console.FormatTable, "Output format: table, json or yaml")
	return cmd
}

func newSchedulesAddCmd(a *app) *cobra.Command {
	var cron string
	cmd := &cobra.Command{
		Use:   "add <name> <content...> --cron <expr>",
		Short: "Add a scheduled task (enabled)",
		Example: `  cohub schedules add nightly "run the test suite" --cron "0 3 * * *"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.schedules().Add(cmd.Context(), args[0], strings.Join(args[1:], " "), cron)
			if errors.Is(err, schedules.ErrMissingFields) {
				return errReported
			}
			return reported(err)
		},
	}
	cmd.Flags().StringVar(&cron, "cron", "", "Cron expression, passed to the registry as-is")
	return cmd
}

func newSchedulesToggleCmd(a *app, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name|id>",
		Short: fmt.Sprintf("Turn a scheduled task %s", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl := a.schedules()
			s, err := ctl.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return reported(ctl.SetEnabled(cmd.Context(), s, enabled))
		},
	}
}

func newSchedulesDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <name|id>",
		Aliases: []string{"delete"},
		Short:   "Delete a scheduled task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.con.AssumeYes = yes
			ctl := a.schedules()
			s, err := ctl.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			err = ctl.Delete(cmd.Context(), s)
			if errors.Is(err, schedules.ErrCancelled) {
				a.con.Notice("Cancelled")
				return nil
			}
			return reported(err)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
