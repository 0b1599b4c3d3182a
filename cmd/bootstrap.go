package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoover/setup/internal/installer"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Install the full suite into the installation home",
	Long: `Clone the search, snoop and ui components, provision their virtualenvs
and dependencies, render configuration from the environment, run migrations
and verify health. Safe to re-run: already-completed steps are skipped and
a previously interrupted run resumes where it stopped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		return a.withLock(func() error {
			if err := installer.EnsureLayout(a.cfg.Home); err != nil {
				return err
			}
			if err := installer.CreateScripts(a.cfg.Home); err != nil {
				return err
			}
			return a.reconcile(ctx)
		})
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Bring installed components forward to their branch heads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		return a.withLock(func() error {
			return a.reconcile(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(upgradeCmd)
}
