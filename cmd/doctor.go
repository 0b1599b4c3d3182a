package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/installer"
	"github.com/hoover/setup/internal/logger"
	"github.com/hoover/setup/internal/planner"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [component]",
	Short: "Run health checks without changing anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		plan, err := planner.HealthPlan(a.components, name)
		if err != nil {
			return err
		}

		// Read-only: doctor never takes the lock and never touches the
		// manifest.
		a.exec.ReadOnly = true
		report, err := a.exec.Execute(ctx, plan)
		if err != nil {
			return err
		}

		failed := 0
		for _, res := range report.Results {
			switch res.Status {
			case installer.Success:
				logger.Info("[INFO] %s: pass\n", res.Action.Component)
			case installer.Skipped:
				logger.Warn("[WARN] %s: %s\n", res.Action.Component, res.Reason)
			case installer.Failed:
				logger.Error("[ERROR] %s: fail (%v)\n", res.Action.Component, res.Err)
				failed++
			}
		}
		if failed > 0 {
			return errs.New(errs.KindHealth, "%d component(s) failed their health check", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
