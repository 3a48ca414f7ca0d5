package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gluk-w/cohub/internal/config"
	"github.com/gluk-w/cohub/internal/console"
	"github.com/gluk-w/cohub/internal/lifecycle"
	"github.com/gluk-w/cohub/internal/registry"
	"github.com/spf13/cobra"
)

func (a *app) controller(cmd *cobra.Command) *lifecycle.Controller {
	return &lifecycle.Controller{
		Registry:  a.reg,
		Navigator: &attacher{a: a, in: cmd.InOrStdin(), out: cmd.OutOrStdout()},
		Confirmer: a.con,
		View:      a.con,
	}
}

// findSession resolves a full id or a unique id prefix (such as the short
// id shown by ls).
func (a *app) findSession(ctx context.Context, ref string) (registry.Session, error) {
	sessions, err := a.reg.ListSessions(ctx)
	if err != nil {
		return registry.Session{}, err
	}
	var matches []registry.Session
	for _, s := range sessions {
		if s.ID == ref {
			return s, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return registry.Session{}, fmt.Errorf("no session matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return registry.Session{}, fmt.Errorf("%q matches %d sessions, use more characters", ref, len(matches))
}

func newListCmd(a *app) *cobra.Command {
	var watch bool
	var output string
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if output != console.FormatTable {
				sessions, err := a.reg.ListSessions(ctx)
				if err != nil {
					return err
				}
				return console.Encode(cmd.OutOrStdout(), output, sessions)
			}
			ctl := a.controller(cmd)
			if watch {
				a.con.Live = true
				ctl.Watch(ctx, config.Cfg.PollInterval)
				return nil
			}
			return ctl.Refresh(ctx)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep the listing on screen and refresh it")
	cmd.Flags().StringVarP(&output, "output", "o", console.FormatTable, "Output format: table, json or yaml")
	return cmd
}

func newNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a session and attach to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			return reported(a.controller(cmd).Create(cmd.Context()))
		},
	}
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "open <id>",
		Aliases: []string{"attach"},
		Short:   "Attach to a running session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sessionAction(cmd, lifecycle.ActionOpen, args[0])
		},
	}
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Restart a stopped session and attach to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sessionAction(cmd, lifecycle.ActionResume, args[0])
		},
	}
}

func newCloseCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "close <id>",
		Aliases: []string{"stop"},
		Short:   "Stop a running session (the record is kept)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.con.AssumeYes = yes
			return a.sessionAction(cmd, lifecycle.ActionClose, args[0])
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Permanently delete a stopped session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.con.AssumeYes = yes
			return a.sessionAction(cmd, lifecycle.ActionDelete, args[0])
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func (a *app) sessionAction(cmd *cobra.Command, action lifecycle.Action, ref string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := a.findSession(ctx, ref)
	if err != nil {
		return err
	}
	err = a.controller(cmd).Perform(ctx, action, s)
	switch {
	case errors.Is(err, lifecycle.ErrCancelled):
		a.con.Notice("Cancelled")
		return nil
	case errors.Is(err, lifecycle.ErrNotOffered):
		return fmt.Errorf("cannot %s session %s: it is %s", action, s.ShortID(), aliveLabel(s))
	}
	return reported(err)
}

func aliveLabel(s registry.Session) string {
	if s.Alive {
		return "running"
	}
	return "not running"
}
