// Package cli is the cohub command line: login, session listing and
// lifecycle, the attached terminal view, admin overview and schedules.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/gluk-w/cohub/internal/auth"
	"github.com/gluk-w/cohub/internal/config"
	"github.com/gluk-w/cohub/internal/console"
	"github.com/gluk-w/cohub/internal/database"
	"github.com/gluk-w/cohub/internal/logging"
	"github.com/gluk-w/cohub/internal/registry"
	"github.com/spf13/cobra"
)

var version = "dev"

const (
	expiredMessage   = "session expired, run `cohub login`"
	loggedOutMessage = "not logged in, run `cohub login`"
)

// errReported means the failure was already shown to the user.
var errReported = errors.New("reported")

// app is the per-invocation state shared by all commands.
type app struct {
	verbose   bool
	serverURL string

	tokens  *auth.Store
	reg     *registry.Client
	con     *console.Console
	cancel  context.CancelFunc
	expired atomic.Bool
	opened  bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cohub",
		Short: "Manage and attach to remote shell sessions",
		Long: `cohub talks to a session registry: list, create, resume, close and
delete remote shell sessions, attach your terminal to one, and manage
scheduled tasks.

Quick Start:
  cohub login alice          # Log in
  cohub ls                   # List your sessions
  cohub new                  # Create a session and attach to it
  cohub open 1a2b3c4d        # Attach to a running session (Ctrl-] detaches)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Mirror log output to stderr")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "Registry URL (overrides COHUB_SERVER_URL)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newListCmd(a),
		newNewCmd(a),
		newOpenCmd(a),
		newResumeCmd(a),
		newCloseCmd(a),
		newDeleteCmd(a),
		newAdminCmd(a),
		newSchedulesCmd(a),
		newLogsCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadE(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.serverURL != "" {
		config.Cfg.ServerURL = a.serverURL
	}
	logging.Init(a.verbose)

	if err := database.Init(); err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	a.opened = true

	keyKind, err := registry.ParseKeyKind(config.Cfg.ScheduleKey)
	if err != nil {
		return err
	}

	a.tokens = auth.NewStore(auth.DBPersister{})
	if err := a.tokens.Restore(); err != nil {
		log.Printf("[cli] restore credential: %v", err)
	}
	a.reg = registry.New(config.Cfg.ServerURL, a.tokens,
		registry.WithHTTPClient(&http.Client{Timeout: config.Cfg.RequestTimeout}),
		registry.WithScheduleKeyKind(keyKind),
	)
	a.con = console.New(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, cancel := context.WithCancel(cmd.Context())
	a.cancel = cancel
	cmd.SetContext(ctx)

	// A rejected token ends whatever is running; the user has to log in again.
	a.tokens.OnRevoke(func(r auth.RevokeReason) {
		if r != auth.RevokedByServer {
			return
		}
		a.expired.Store(true)
		cancel()
	})
	return nil
}

func (a *app) teardown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.opened {
		database.Close()
		database.DB = nil
	}
	logging.Close()
}

// exitMessage maps a command error to what the user sees. An empty string
// means nothing more should be printed.
func (a *app) exitMessage(err error) string {
	switch {
	case a.expired.Load():
		return expiredMessage
	case registry.IsUnauthorized(err):
		return loggedOutMessage
	case errors.Is(err, errReported):
		return ""
	}
	return "Error: " + err.Error()
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	defer a.teardown()
	if err == nil && !a.expired.Load() {
		return 0
	}
	if msg := a.exitMessage(err); msg != "" {
		fmt.Fprintln(stderr, msg)
	}
	return 1
}

// Execute runs the command line from os.Args and exits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// reported converts an error the view already displayed into errReported.
func reported(err error) error {
	var reqErr *registry.RequestError
	if errors.As(err, &reqErr) {
		return errReported
	}
	return err
}

// requireLogin fails fast when no token is stored.
func (a *app) requireLogin() error {
	if _, ok := a.tokens.Token(); !ok {
		return &registry.AuthError{Op: "cohub"}
	}
	return nil
}
