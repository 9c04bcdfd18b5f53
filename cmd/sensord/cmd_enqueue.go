// cmd/sensord/cmd_enqueue.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rx178nwj/plant-dashboard/internal/cmdqueue"
)

func newEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Append a device command to the queue file",
		Long:  "Append one command line to the queue read by a running daemon.\nThe daemon executes it before its next sweep, or sooner when it watches the file.",
	}
	cmd.PersistentFlags().String("queue", "", "queue file (default from config)")
	cmd.PersistentFlags().String("device", "", "target device_id")
	_ = cmd.MarkPersistentFlagRequired("device")

	cmd.AddCommand(newEnqueueThresholdsCmd(), newEnqueueLEDCmd())
	return cmd
}

func queuePath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("queue"); p != "" {
		return p, nil
	}
	c, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return c.Queue.Path, nil
}

func enqueue(cmd *cobra.Command, c cmdqueue.Command) error {
	path, err := queuePath(cmd)
	if err != nil {
		return err
	}
	if err := cmdqueue.Append(path, c); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued %s for %s in %s\n", c.Command, c.DeviceID, path)
	return nil
}

func newEnqueueThresholdsCmd() *cobra.Command {
	var dry, wet int
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Set the soil watering thresholds (mV)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("device")
			c, err := cmdqueue.NewThresholdsCommand(id, dry, wet)
			if err != nil {
				return err
			}
			return enqueue(cmd, c)
		},
	}
	cmd.Flags().IntVar(&dry, "dry", 0, "dry threshold")
	cmd.Flags().IntVar(&wet, "wet", 0, "wet threshold")
	_ = cmd.MarkFlagRequired("dry")
	_ = cmd.MarkFlagRequired("wet")
	return cmd
}

func newEnqueueLEDCmd() *cobra.Command {
	var p cmdqueue.ActuatorPayload
	cmd := &cobra.Command{
		Use:   "led",
		Short: "Drive the indicator LED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("device")
			c, err := cmdqueue.NewActuatorCommand(id, p)
			if err != nil {
				return err
			}
			return enqueue(cmd, c)
		},
	}
	cmd.Flags().IntVar(&p.Red, "red", 0, "red 0-255")
	cmd.Flags().IntVar(&p.Green, "green", 0, "green 0-255")
	cmd.Flags().IntVar(&p.Blue, "blue", 0, "blue 0-255")
	cmd.Flags().IntVar(&p.Brightness, "brightness", 100, "brightness 0-255")
	cmd.Flags().IntVar(&p.DurationMs, "duration-ms", 1000, "on time in milliseconds")
	return cmd
}
