// cmd/sensord/cmd_probe.go
package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rx178nwj/plant-dashboard/internal/logging"
	"github.com/rx178nwj/plant-dashboard/internal/poller"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
	"github.com/rx178nwj/plant-dashboard/internal/radio"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/session"
	"github.com/rx178nwj/plant-dashboard/internal/writer"
)

type probeOutput struct {
	Device registry.Device      `json:"device"`
	Info   *protocol.DeviceInfo `json:"device_info,omitempty"`
	Poll   writer.Record        `json:"poll"`
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <device_id>",
		Short: "Poll one registered device once and print the result",
		Long:  "Connects to one device with the daemon's settings, prints its device info\n(active sensors only) and one reading. Do not run alongside the daemon.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := logging.New(c.Log)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg, err := registry.Open(ctx, c.Registry.Path)
			if err != nil {
				return err
			}
			defer reg.Close()

			dev, err := reg.Get(ctx, args[0])
			if err != nil {
				return err
			}

			adapter, err := radio.NewBlueZ(radio.BlueZConfig{
				ServiceUUID:            c.Radio.ServiceUUID,
				CommandCharacteristic:  c.Radio.CommandCharacteristic,
				ResponseCharacteristic: c.Radio.ResponseCharacteristic,
			})
			if err != nil {
				return err
			}

			pool, err := session.NewPool(adapter, session.Config{
				ScanTimeout:       c.Session.ScanTimeout,
				ConnectTimeout:    c.Session.ConnectTimeout,
				ResponseTimeout:   c.Session.ResponseTimeout,
				ReconnectAttempts: c.Session.ReconnectAttempts,
				BackoffBase:       c.Session.BackoffBase,
			}, func(ctx context.Context, id string) (string, error) {
				d, err := reg.Get(ctx, id)
				return d.MAC, err
			}, log)
			if err != nil {
				return err
			}
			defer pool.DisconnectAll()

			p, err := poller.Build(*c, pool, adapter, log)
			if err != nil {
				return err
			}

			out := probeOutput{Device: dev}
			if dev.Active() {
				s, err := pool.For(dev.ID, dev.MAC)
				if err != nil {
					return err
				}
				if err := s.EnsureConnected(ctx); err != nil {
					log.WithError(err).Warn("connect failed")
				} else if info, err := s.DeviceInfo(ctx); err != nil {
					log.WithError(err).Warn("device info failed")
				} else {
					out.Info = &info
				}
			}
			out.Poll = writer.NewRecord(p.PollOnce(ctx, dev))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
