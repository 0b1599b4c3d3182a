package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoover/setup/internal/installer"
	"github.com/hoover/setup/internal/run"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the setup checkout itself and rewrite the hoover wrapper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		return a.withLock(func() error {
			return installer.UpdateSetup(ctx, run.Exec{}, a.cfg)
		})
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
