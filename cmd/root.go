package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/logger"
)

// debug toggles verbose logging via the global --debug flag.
var debug bool

var rootCmd = &cobra.Command{
	Use:   "hoover",
	Short: "Install, upgrade and run the Hoover suite (search, snoop, ui)",

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(debug)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// with distinct non-zero codes for validation, network, health-check and
// lock-contention failures.
func Execute() int {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		logger.Error("[ERROR] %v\n", err)
		return errs.ExitCode(err)
	}
	return errs.ExitOK
}
