package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/swarmchat/internal/domain"
)

type authFlags struct {
	username      string
	passwordStdin bool
}

func (f *authFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.username, "username", "", "Account name (default session.username)")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "Read the password from stdin")
}

// resolve returns the username and password from flags, stdin and config.
func (f *authFlags) resolve(cmd *cobra.Command, app *app) (string, string, error) {
	username := f.username
	if username == "" {
		username = app.cfg.Session.Username
	}
	if username == "" {
		return "", "", errUsernameRequired
	}

	password := app.cfg.Session.Password
	if f.passwordStdin {
		read, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return "", "", err
		}
		password = read
	}
	if password == "" {
		return "", "", errPasswordRequired
	}

	return username, password, nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newConnectCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to the node with stored or configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
			if err != nil {
				return err
			}
			defer rt.Close()

			err = runConnectSpinner(cmd.Context(), cmd.ErrOrStderr(), rt.sessions, newConnectPhases("Connecting"), rt.connect)
			if err != nil {
				return err
			}
			return writeSession(cmd, rt.sessions.Session())
		},
	}
}

func newLoginCmd(app *app) *cobra.Command {
	var flags authFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a password and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, password, err := flags.resolve(cmd, app)
			if err != nil {
				return err
			}
			return runAuth(cmd, app, "Logging in as "+username, func(rt *runtime, ctx context.Context) error {
				return rt.sessions.Login(ctx, username, password)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newRegisterCmd(app *app) *cobra.Command {
	var flags authFlags

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the node and log in as it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, password, err := flags.resolve(cmd, app)
			if err != nil {
				return err
			}
			if err := domain.CheckUsername(username); err != nil {
				return err
			}
			return runAuth(cmd, app, "Registering "+username, func(rt *runtime, ctx context.Context) error {
				return rt.sessions.Register(ctx, username, password)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func runAuth(cmd *cobra.Command, app *app, label string, auth func(*runtime, context.Context) error) error {
	rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
	if err != nil {
		return err
	}
	defer rt.Close()

	err = runConnectSpinner(cmd.Context(), cmd.ErrOrStderr(), rt.sessions, newConnectPhases(label), func(ctx context.Context) error {
		return auth(rt, ctx)
	})
	if err != nil {
		return err
	}
	return writeSession(cmd, rt.sessions.Session())
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the session and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.oneShot(cmd.Context(), domain.ExplicitAuth{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.sessions.Disconnect(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

func writeSession(cmd *cobra.Command, session domain.Session) error {
	who := session.UserID
	if who == "" {
		who = "anonymous"
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s as %s at %s\n", session.State, who, session.BaseURL)
	return err
}
