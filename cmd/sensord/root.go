// cmd/sensord/root.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/rx178nwj/plant-dashboard/internal/config"
)

// newRootCmd creates the root sensord command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sensord",
		Short:         "Plant sensor radio daemon",
		Long:          "sensord polls registered plant sensors and climate meters over BLE,\nforwards their readings and executes queued device commands.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "path to sensord.yaml (defaults apply when empty)")

	cmd.AddCommand(
		newRunCmd(),
		newEnqueueCmd(),
		newProbeCmd(),
		newDecodeCmd(),
	)
	return cmd
}

// loadConfig reads, validates and normalizes the --config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	c := &config.Config{}
	if path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(c); err != nil {
		return nil, err
	}
	config.Normalize(c)
	return c, nil
}
