// cmd/sensord/cmd_run.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rx178nwj/plant-dashboard/internal/cmdqueue"
	"github.com/rx178nwj/plant-dashboard/internal/daemon"
	"github.com/rx178nwj/plant-dashboard/internal/logging"
	"github.com/rx178nwj/plant-dashboard/internal/metrics"
	"github.com/rx178nwj/plant-dashboard/internal/radio"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/writer"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the polling daemon until SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			// --------------------
			// Collaborators
			// --------------------

			reg, err := registry.Open(ctx, c.Registry.Path)
			if err != nil {
				return err
			}
			defer reg.Close()

			adapter, err := radio.NewBlueZ(radio.BlueZConfig{
				ServiceUUID:            c.Radio.ServiceUUID,
				CommandCharacteristic:  c.Radio.CommandCharacteristic,
				ResponseCharacteristic: c.Radio.ResponseCharacteristic,
			})
			if err != nil {
				return err
			}

			sink, err := writer.BuildSink(ctx, c.Sink, log)
			if err != nil {
				return err
			}
			defer sink.Close()

			mirror, closeMirror, err := writer.BuildStatusMirror(c.StatusMirror)
			if err != nil {
				return err
			}
			if closeMirror != nil {
				defer closeMirror()
			}

			var m *metrics.Metrics
			if c.Metrics.Listen != "" {
				m = metrics.New()
				go func() {
					if err := m.Serve(ctx, c.Metrics.Listen, c.Metrics.Path, log); err != nil {
						log.WithError(err).Error("metrics server stopped")
					}
				}()
			}

			var wake <-chan struct{}
			if !c.Queue.DisableWatch {
				if wake, err = cmdqueue.Watch(ctx, c.Queue.Path, log); err != nil {
					log.WithError(err).Warn("queue watch unavailable, draining once per cycle")
				}
			}

			// --------------------
			// Daemon
			// --------------------

			d, err := daemon.New(daemon.Options{
				Config:   *c,
				Radio:    adapter,
				Registry: reg,
				Sink:     sink,
				Mirror:   mirror,
				Metrics:  m,
				Wake:     wake,
				Log:      log,
			})
			if err != nil {
				return err
			}

			log.WithFields(logrus.Fields{
				"registry": c.Registry.Path,
				"sink":     c.Sink.File,
			}).Info("sensord starting")
			return d.Run(ctx)
		},
	}
}
