package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kodj/kodjadmin/console"
)

var consoleAddr string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Serve the local admin console",
	Long: `Serve the login and home surfaces of the session manager on a local
address. Stored credentials are validated in the background while the
console starts; /api/* is forwarded to the backend with the session's
access credential.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.ConsoleAddr = consoleAddr
		}
		loc := console.NewLocation(nil)
		a, err := newApp(cfg, cmd.ErrOrStderr(), loc)
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := url.Parse(cfg.APIBaseURL)
		if err != nil {
			return fmt.Errorf("parsing api base url: %w", err)
		}
		srv := console.New(a.session,
			console.WithLogger(a.logger),
			console.WithRegistry(a.registry),
			console.WithAPIProxy(target, a.interceptor),
			console.WithLocation(loc),
		)
		defer srv.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go a.session.Start(ctx)

		server := &http.Server{
			Addr:              cfg.ConsoleAddr,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("console failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		fmt.Fprintf(out, "Console listening on http://%s (profile: %s)\n", cfg.ConsoleAddr, cfg.Profile)

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nShutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("console shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleAddr, "addr", "127.0.0.1:8088", "Address to listen on (overrides KODJ_CONSOLE_ADDR)")
}
