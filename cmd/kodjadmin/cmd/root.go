package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kodj/kodjadmin/config"
)

// Version is set at build time.
var Version = "dev"

var (
	cfg *config.Config

	profileFlag  string
	storeFlag    string
	logLevelFlag string
	apiURLFlag   string
	dataDirFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "kodjadmin",
	Short: "kodjadmin manages an authenticated KODJ admin session",
	Long: `Sign in to the KODJ back office with email, password and a one-time code,
keep the session renewed, and manage meetups, news and job posts from the
command line or a local console.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("profile") {
			loaded.Profile = profileFlag
		}
		if flags.Changed("store") {
			loaded.Store = storeFlag
		}
		if flags.Changed("log-level") {
			loaded.LogLevel = logLevelFlag
		}
		if flags.Changed("api-base-url") {
			loaded.APIBaseURL = apiURLFlag
		}
		if flags.Changed("data-dir") {
			loaded.DataDir = dataDirFlag
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&profileFlag, "profile", "default", "Session profile (overrides KODJ_PROFILE)")
	pf.StringVar(&storeFlag, "store", "bbolt", "Token store backend: bbolt, memory or redis (overrides KODJ_STORE)")
	pf.StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn or error (overrides KODJ_LOG_LEVEL)")
	pf.StringVar(&apiURLFlag, "api-base-url", "", "Backend API base URL (overrides KODJ_API_BASE_URL)")
	pf.StringVar(&dataDirFlag, "data-dir", "", "Directory for the token database and key file (overrides KODJ_DATA_DIR)")
}
