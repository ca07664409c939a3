package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

func printUser(w io.Writer, u *userentity.PublicUser) {
	fmt.Fprintf(w, "%s <%s>\n", u.Name, u.Email)
	fmt.Fprintf(w, "  id:   %s\n", u.ID)
	fmt.Fprintf(w, "  role: %s\n", u.Role)
	if u.Position != nil {
		fmt.Fprintf(w, "  position: %s\n", *u.Position)
	}
	if u.IsFirstLogin {
		fmt.Fprintln(w, "  password change required: run attendctl password")
	}
}

type credentialOptions struct {
	*RootOptions
	Name     string
	Email    string
	Password string
}

func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an employee account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := opts.readSecret(cmd, opts.Password, "Password")
			if err != nil {
				return err
			}
			u, err := opts.Sessions.Register(cmd.Context(), opts.Name, opts.Email, pw)
			if err != nil {
				return err
			}
			return opts.printer(cmd).Print(u, func(w io.Writer) {
				fmt.Fprintln(w, "registered; sign in with attendctl login")
				printUser(w, u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := opts.readSecret(cmd, opts.Password, "Password")
			if err != nil {
				return err
			}
			s, err := opts.Sessions.Login(cmd.Context(), opts.Email, pw)
			if err != nil {
				return err
			}
			return opts.printer(cmd).Print(s.User, func(w io.Writer) {
				fmt.Fprintln(w, "signed in")
				printUser(w, s.User)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// a stored token has to be loaded before it can be revoked
			if _, err := opts.Sessions.Bootstrap(cmd.Context()); err != nil {
				opts.Logger.Debugw("session check before logout failed", "err", err)
			}
			if err := opts.Sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func NewWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			return opts.printer(cmd).Print(s.User, func(w io.Writer) { printUser(w, s.User) })
		},
	}
}

func NewRefreshCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the session token for a fresh one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.signedIn(cmd.Context()); err != nil {
				return err
			}
			s, err := opts.Sessions.Refresh(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "refresh failed; signed out", err)
			}
			return opts.printer(cmd).Print(map[string]any{"refreshed": true, "savedAt": s.SavedAt}, func(w io.Writer) {
				fmt.Fprintln(w, "session refreshed")
			})
		},
	}
}

type passwordOptions struct {
	*RootOptions
	Current string
	New     string
}

func NewPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &passwordOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		Long: `Change your password. Accounts created by an administrator must do this
before recording attendance. Other sessions are signed out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.signedIn(cmd.Context()); err != nil {
				return err
			}
			cur, err := opts.readSecret(cmd, opts.Current, "Current password")
			if err != nil {
				return err
			}
			next, err := opts.readSecret(cmd, opts.New, "New password")
			if err != nil {
				return err
			}
			s, err := opts.Sessions.ChangePassword(cmd.Context(), cur, next)
			if err != nil {
				return err
			}
			return opts.printer(cmd).Print(s.User, func(w io.Writer) {
				fmt.Fprintln(w, "password changed")
			})
		},
	}
	cmd.Flags().StringVar(&opts.Current, "current", "", "current password (read from stdin when omitted)")
	cmd.Flags().StringVar(&opts.New, "new", "", "new password (read from stdin when omitted)")
	return cmd
}
