// Package cli implements the authsync command line.
package cli

import (
	"log/slog"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagEmbedded  bool

	cfg    authsync.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the authsync CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authsync",
		Short: "authsync keeps a device's session and authorization profile in step",
		Long: "authsync reconciles the session held by a device with the profile row " +
			"that carries its role, and guards routes on the result.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := authsync.LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = flagLogFormat
			}
			if flagDebug {
				loaded.Log.Level = "debug"
			}
			cfg = loaded
			logger = logging.NewLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
			for _, w := range cfg.Lint() {
				logger.Warn("config lint", "code", w.Code, "message", w.Message)
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().BoolVar(&flagEmbedded, "embedded", false, "Run against an in-process Redis instead of session.redis_addr")

	root.AddCommand(
		newServeCmd(),
		newWatchCmd(),
		newProvisionCmd(),
		newSignInCmd(),
		newRefreshCmd(),
		newSignOutCmd(),
	)

	return root
}
