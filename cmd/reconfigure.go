package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoover/setup/internal/planner"
)

var reconfigureCmd = &cobra.Command{
	Use:   "reconfigure",
	Short: "Re-render every component's configuration from the environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		return a.withLock(func() error {
			plan, err := planner.RenderPlan(a.components)
			if err != nil {
				return err
			}
			return a.execute(ctx, plan)
		})
	},
}

func init() {
	rootCmd.AddCommand(reconfigureCmd)
}
