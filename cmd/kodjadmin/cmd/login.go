package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/session"
)

// resendCommand asks for a new code at the code prompt.
const resendCommand = "resend"

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email, password and a one-time code",
	Long: `Sign in to the KODJ back office. The password step makes the backend
send a one-time code by email; enter it at the prompt, or type "resend" to
have it sent again. The credentials are stored sealed for later commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		defer a.Close()
		return runLogin(cmd, a.session)
	},
}

func runLogin(cmd *cobra.Command, sess *session.Controller) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	if err := sess.Start(ctx); err == nil && sess.State().Authenticated() {
		p := sess.State().Principal
		fmt.Fprintf(out, "Already signed in as %s (%s)\n", p.DisplayName, p.Email)
		return nil
	}

	email := loginEmail
	if email == "" {
		line, err := prompt(out, in, "Email: ")
		if err != nil {
			return err
		}
		email = line
	}
	password, err := prompt(out, in, "Password: ")
	if err != nil {
		return err
	}
	if err := sess.SendOTP(ctx, email, password); err != nil {
		return loginError(err)
	}
	fmt.Fprintf(out, "A one-time code was sent to %s\n", sess.State().Challenge.Email)

	for {
		code, err := prompt(out, in, "Code (or \"resend\"): ")
		if err != nil {
			return err
		}
		if strings.EqualFold(code, resendCommand) {
			if err := sess.ResendOTP(ctx); err != nil {
				fmt.Fprintln(out, loginError(err))
				continue
			}
			fmt.Fprintln(out, "A new code was sent")
			continue
		}
		err = sess.VerifyOTP(ctx, code)
		switch {
		case err == nil:
			p := sess.State().Principal
			fmt.Fprintf(out, "Signed in as %s (%s)\n", p.DisplayName, p.Email)
			return nil
		case authapi.KindOf(err) == authapi.KindBadCredentials && sess.State().Challenge != nil:
			// Wrong or malformed code; the challenge is still pending.
			fmt.Fprintln(out, loginError(err))
		default:
			return loginError(err)
		}
	}
}

func prompt(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// loginError turns err into its operator-facing message.
func loginError(err error) error {
	var ae *authapi.Error
	if errors.As(err, &ae) {
		if ae.Kind == authapi.KindRateLimited && ae.RetryAfter > 0 {
			return fmt.Errorf("%s (retry in %s)", authapi.UserMessage(err), ae.RetryAfter.Round(time.Second))
		}
		return errors.New(authapi.UserMessage(err))
	}
	return err
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email (prompted when empty)")
}
