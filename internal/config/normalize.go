// internal/config/normalize.go
package config

import (
	"time"

	"github.com/rx178nwj/plant-dashboard/internal/cmdqueue"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
)

// Defaults applied by Normalize.
const (
	DefaultPollInterval         = 60 * time.Second
	DefaultInterDeviceDelay     = 2 * time.Second
	DefaultErrorBackoff         = 10 * time.Second
	DefaultStabilizationWait    = 30 * time.Second
	DefaultReadAttempts         = 3
	DefaultReadRetryDelay       = 2 * time.Second
	DefaultBroadcastScanTimeout = 10 * time.Second

	DefaultScanTimeout       = 5 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultResponseTimeout   = 10 * time.Second
	DefaultReconnectAttempts = 5
	DefaultBackoffBase       = 2.0

	DefaultHealthWindow    = 10
	DefaultHealthThreshold = 0.5
	DefaultHealthCooldown  = 600 * time.Second

	DefaultRegistryPath = "plant_monitor.db"
	DefaultSinkFile     = "-"

	DefaultRedisListMax         = 1000
	DefaultRedisBreakerFailures = 5
	DefaultRedisBreakerCooldown = 30 * time.Second

	DefaultStatusMaxDevices = 32
	DefaultStatusTimeout    = 2 * time.Second

	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stderr"
)

// status block size, duplicated from internal/status to keep config a leaf
const statusSlotsPerDevice = 20

// DefaultRestartCommand restarts the BlueZ service.
var DefaultRestartCommand = []string{"systemctl", "restart", "bluetooth"}

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DAEMON
	// ------------------------------------------------------------

	d := &cfg.Daemon
	setDuration(&d.PollInterval, DefaultPollInterval)
	setDuration(&d.InterDeviceDelay, DefaultInterDeviceDelay)
	setDuration(&d.ErrorBackoff, DefaultErrorBackoff)
	setDuration(&d.StabilizationWait, DefaultStabilizationWait)
	setDuration(&d.ReadRetryDelay, DefaultReadRetryDelay)
	setDuration(&d.StaleAfter, 2*d.PollInterval)
	if d.ReadAttempts == 0 {
		d.ReadAttempts = DefaultReadAttempts
	}

	// ------------------------------------------------------------
	// RADIO / SESSION
	// ------------------------------------------------------------

	r := &cfg.Radio
	setString(&r.ServiceUUID, protocol.ServiceUUID)
	setString(&r.CommandCharacteristic, protocol.CommandCharacteristic)
	setString(&r.ResponseCharacteristic, protocol.ResponseCharacteristic)
	setDuration(&r.BroadcastScanTimeout, DefaultBroadcastScanTimeout)
	if len(r.RestartCommand) == 0 {
		r.RestartCommand = append([]string(nil), DefaultRestartCommand...)
	}

	s := &cfg.Session
	setDuration(&s.ScanTimeout, DefaultScanTimeout)
	setDuration(&s.ConnectTimeout, DefaultConnectTimeout)
	setDuration(&s.ResponseTimeout, DefaultResponseTimeout)
	if s.ReconnectAttempts == 0 {
		s.ReconnectAttempts = DefaultReconnectAttempts
	}
	if s.BackoffBase == 0 {
		s.BackoffBase = DefaultBackoffBase
	}

	// ------------------------------------------------------------
	// HEALTH
	// ------------------------------------------------------------

	h := &cfg.Health
	if h.Window == 0 {
		h.Window = DefaultHealthWindow
	}
	if h.Threshold == 0 {
		h.Threshold = DefaultHealthThreshold
	}
	setDuration(&h.Cooldown, DefaultHealthCooldown)

	// ------------------------------------------------------------
	// QUEUE / REGISTRY / SINK
	// ------------------------------------------------------------

	setString(&cfg.Queue.Path, cmdqueue.DefaultPath)
	setString(&cfg.Registry.Path, DefaultRegistryPath)
	setString(&cfg.Sink.File, DefaultSinkFile)
	if cfg.Sink.Redis.Addr != "" && cfg.Sink.Redis.ListKey != "" && cfg.Sink.Redis.ListMax == 0 {
		cfg.Sink.Redis.ListMax = DefaultRedisListMax
	}
	if cfg.Sink.Redis.Addr != "" {
		if cfg.Sink.Redis.BreakerFailures == 0 {
			cfg.Sink.Redis.BreakerFailures = DefaultRedisBreakerFailures
		}
		if cfg.Sink.Redis.BreakerCooldown == 0 {
			cfg.Sink.Redis.BreakerCooldown = DefaultRedisBreakerCooldown
		}
	}

	// ------------------------------------------------------------
	// STATUS MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if cfg.StatusMirror.Endpoint != "" {
		if cfg.StatusMirror.MaxDevices == 0 {
			cfg.StatusMirror.MaxDevices = DefaultStatusMaxDevices
		}
		setDuration(&cfg.StatusMirror.Timeout, DefaultStatusTimeout)
	}

	// ------------------------------------------------------------
	// METRICS / LOG
	// ------------------------------------------------------------

	if cfg.Metrics.Listen != "" {
		setString(&cfg.Metrics.Path, DefaultMetricsPath)
	}
	setString(&cfg.Log.Level, DefaultLogLevel)
	setString(&cfg.Log.Format, DefaultLogFormat)
	setString(&cfg.Log.Output, DefaultLogOutput)
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}
