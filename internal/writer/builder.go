// internal/writer/builder.go
package writer

import (
	"context"

	"github.com/sirupsen/logrus"

	cfg "github.com/rx178nwj/plant-dashboard/internal/config"
	wmodbus "github.com/rx178nwj/plant-dashboard/internal/writer/modbus"
)

// BuildSink creates the configured output destinations.
// Assumes config has already been validated and normalized.
func BuildSink(ctx context.Context, c cfg.SinkConfig, log logrus.FieldLogger) (Writer, error) {
	b := Fanout()

	if c.File != "" {
		fw, err := OpenFile(c.File)
		if err != nil {
			return nil, err
		}
		b.Add("file", fw)
	}

	if c.Redis.Addr != "" {
		rw, err := DialRedis(ctx, RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Channel:  c.Redis.Channel,
			ListKey:  c.Redis.ListKey,
			ListMax:  c.Redis.ListMax,

			BreakerFailures: c.Redis.BreakerFailures,
			BreakerCooldown: c.Redis.BreakerCooldown,
		}, log)
		if err != nil {
			_ = b.Build().Close()
			return nil, err
		}
		b.Add("redis", rw)
	}

	return b.Build(), nil
}

// BuildStatusMirror creates the mirror and its endpoint client.
// Returns nil, nil, nil when the mirror is disabled.
func BuildStatusMirror(c cfg.StatusMirrorConfig) (*StatusMirror, func() error, error) {
	if c.Endpoint == "" {
		return nil, nil, nil
	}

	cli, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint:    c.Endpoint,
		Timeout:     c.Timeout,
		IdleTimeout: 0,
	})
	if err != nil {
		return nil, nil, err
	}

	m, err := NewStatusMirror(MirrorConfig{
		UnitID:      c.UnitID,
		BaseAddress: c.BaseAddress,
		MaxDevices:  c.MaxDevices,
		Slots:       c.Slots,
	}, cli)
	if err != nil {
		_ = cli.Close()
		return nil, nil, err
	}
	return m, cli.Close, nil
}
