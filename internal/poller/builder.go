// internal/poller/builder.go
package poller

import (
	"github.com/sirupsen/logrus"

	cfg "github.com/rx178nwj/plant-dashboard/internal/config"
	"github.com/rx178nwj/plant-dashboard/internal/radio"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/session"
)

// Build wires a Poller to the session pool.
// Sessions are reused while the registry MAC is unchanged; the pool handles replacement.
func Build(c cfg.Config, pool *session.Pool, scanner radio.Adapter, log logrus.FieldLogger) (*Poller, error) {
	factory := func(d registry.Device) (Client, error) {
		s, err := pool.For(d.ID, d.MAC)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	return New(
		Config{
			ReadAttempts:         c.Daemon.ReadAttempts,
			ReadRetryDelay:       c.Daemon.ReadRetryDelay,
			BroadcastScanTimeout: c.Radio.BroadcastScanTimeout,
		},
		factory,
		scanner,
		log,
	)
}
