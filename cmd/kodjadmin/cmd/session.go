package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/session"
)

var errNotSignedIn = errors.New("not signed in; run \"kodjadmin login\" first")

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		defer a.Close()
		a.session.Logout()
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Validate the stored session and show who is signed in",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		defer a.Close()
		a.session.Start(cmd.Context())
		printStatus(cmd, a.session.State())
		return nil
	},
}

func printStatus(cmd *cobra.Command, st session.State) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile:  %s\n", cfg.Profile)
	fmt.Fprintf(out, "Backend:  %s\n", cfg.APIBaseURL)
	fmt.Fprintf(out, "Session:  %s\n", st.Phase)
	if p := st.Principal; p != nil {
		fmt.Fprintf(out, "User:     %s (%s)\n", p.DisplayName, p.Email)
		fmt.Fprintf(out, "Role:     %s\n", p.Role)
	}
	if msg := st.ErrMessage(); msg != "" {
		fmt.Fprintf(out, "Error:    %s\n", msg)
	}
}

// requireSession starts the controller and fails unless it settles
// authenticated.
func requireSession(cmd *cobra.Command, sess *session.Controller) error {
	if err := sess.Start(cmd.Context()); err != nil && authapi.IsTransient(err) {
		return fmt.Errorf("validating session: %s", authapi.UserMessage(err))
	}
	st := sess.State()
	if !st.Authenticated() {
		if msg := st.ErrMessage(); msg != "" {
			return errors.New(msg)
		}
		return errNotSignedIn
	}
	return nil
}

func init() {
	rootCmd.AddCommand(logoutCmd, statusCmd)
}
