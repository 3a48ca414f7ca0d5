package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gluk-w/cohub/internal/crypto"
	"github.com/gluk-w/cohub/internal/registry"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(a *app) *cobra.Command {
	var passwordFile string
	cmd := &cobra.Command{
		Use:   "login <uid>",
		Short: "Log in to the registry",
		Long: `Log in and store the token locally (encrypted) for later commands.

The password is read from --password-file, from the terminal without echo,
or from the first line of standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, passwordFile)
			if err != nil {
				return err
			}
			res, err := a.reg.Login(cmd.Context(), args[0], password)
			if registry.IsUnauthorized(err) {
				return errors.New("invalid credentials")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", res.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "Read the password from this file")
	return cmd
}

func readPassword(cmd *cobra.Command, file string) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.tokens.Logout(); err != nil {
				return fmt.Errorf("clear credential: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, ok := a.tokens.Credential()
			if !ok {
				return a.requireLogin()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:   %s (%s)\n", cred.Username, cred.UID)
			fmt.Fprintf(out, "Server: %s\n", cred.Server)
			fmt.Fprintf(out, "Token:  %s\n", crypto.Mask(cred.Token))
			return nil
		},
	}
}
