package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/registry"
	"github.com/hoover/setup/internal/run"
)

var manageCmd = &cobra.Command{
	Use:   "manage <component> [args...]",
	Short: "Run a component's management entrypoint in its virtualenv",
	Long: `Passthrough to the component's management command, e.g.:

  hoover manage snoop walk
  hoover manage search createsuperuser`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		c, ok := registry.Get(a.components, args[0])
		if !ok {
			return errs.New(errs.KindValidation, "unknown component %q", args[0])
		}
		if len(c.ManageCmd.Argv) == 0 {
			return errs.New(errs.KindValidation, "component %q has no management entrypoint", c.Name)
		}
		argv := append(append([]string{}, c.ManageCmd.Argv...), args[1:]...)
		if err := run.Interactive(c.ManageCmd.Dir, argv...); err != nil {
			return errs.Wrap(errs.KindExecution, err, "manage %s", c.Name)
		}
		return nil
	},
}

func init() {
	manageCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(manageCmd)
}
