// Command controller runs one virtual-operator's control core: it loads a
// tenant config file, wires every subsystem via internal/controller, and
// blocks until SIGINT/SIGTERM.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "controller",
	Short:   "IP-over-WDM SDN control core",
	Long:    `controller is the control-plane process for one virtual operator of a multi-tenant IP-over-WDM transport network: resource inventory, path computation, connection lifecycle, agent message bus, and QoT monitoring.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the tenant config YAML file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "override the config file's log level to debug")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
