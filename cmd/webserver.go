package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/registry"
	"github.com/hoover/setup/internal/run"
)

var (
	webserverHost string
	webserverPort string
)

var webserverCmd = &cobra.Command{
	Use:   "webserver <component>",
	Short: "Run a component's web server in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		c, ok := registry.Get(a.components, args[0])
		if !ok {
			return errs.New(errs.KindValidation, "unknown component %q", args[0])
		}
		serve := c.Serve(registry.VenvBin(a.cfg.Home), webserverHost, webserverPort)
		if serve == nil {
			return errs.New(errs.KindValidation, "component %q has no web server", c.Name)
		}
		if err := run.Interactive(serve.Dir, serve.Argv...); err != nil {
			return errs.Wrap(errs.KindExecution, err, "webserver %s", c.Name)
		}
		return nil
	},
}

func init() {
	webserverCmd.Flags().StringVar(&webserverHost, "host", "localhost", "Address to bind")
	webserverCmd.Flags().StringVar(&webserverPort, "port", "8080", "Port to bind")
	rootCmd.AddCommand(webserverCmd)
}
