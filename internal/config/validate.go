// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values mean "use the default" and are accepted.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// DURATIONS / COUNTS
	// ------------------------------------------------------------

	durations := []struct {
		name string
		v    int64
	}{
		{"daemon.poll_interval", int64(cfg.Daemon.PollInterval)},
		{"daemon.inter_device_delay", int64(cfg.Daemon.InterDeviceDelay)},
		{"daemon.error_backoff", int64(cfg.Daemon.ErrorBackoff)},
		{"daemon.stabilization_wait", int64(cfg.Daemon.StabilizationWait)},
		{"daemon.read_retry_delay", int64(cfg.Daemon.ReadRetryDelay)},
		{"daemon.stale_after", int64(cfg.Daemon.StaleAfter)},
		{"radio.broadcast_scan_timeout", int64(cfg.Radio.BroadcastScanTimeout)},
		{"session.scan_timeout", int64(cfg.Session.ScanTimeout)},
		{"session.connect_timeout", int64(cfg.Session.ConnectTimeout)},
		{"session.response_timeout", int64(cfg.Session.ResponseTimeout)},
		{"health.cooldown", int64(cfg.Health.Cooldown)},
		{"status_mirror.timeout", int64(cfg.StatusMirror.Timeout)},
	}
	for _, d := range durations {
		if d.v < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}

	if cfg.Daemon.ReadAttempts < 0 {
		return fmt.Errorf("daemon.read_attempts must not be negative")
	}
	if cfg.Session.ReconnectAttempts < 0 {
		return fmt.Errorf("session.reconnect_attempts must not be negative")
	}
	if cfg.Session.BackoffBase < 0 {
		return fmt.Errorf("session.backoff_base must not be negative")
	}
	if cfg.Health.Window < 0 {
		return fmt.Errorf("health.window must not be negative")
	}
	if cfg.Health.Threshold < 0 || cfg.Health.Threshold > 1 {
		return fmt.Errorf("health.threshold %.2f out of range [0,1]", cfg.Health.Threshold)
	}

	// ------------------------------------------------------------
	// RADIO IDENTIFIERS
	// ------------------------------------------------------------

	for name, v := range map[string]string{
		"radio.service_uuid":            cfg.Radio.ServiceUUID,
		"radio.command_characteristic":  cfg.Radio.CommandCharacteristic,
		"radio.response_characteristic": cfg.Radio.ResponseCharacteristic,
	} {
		if v != "" && !isUUID(v) {
			return fmt.Errorf("%s %q is not a 128-bit UUID", name, v)
		}
	}

	// ------------------------------------------------------------
	// SINK
	// ------------------------------------------------------------

	r := cfg.Sink.Redis
	if r.Addr != "" && r.Channel == "" && r.ListKey == "" {
		return fmt.Errorf("sink.redis: channel or list_key required when addr is set")
	}
	if r.ListMax < 0 {
		return fmt.Errorf("sink.redis.list_max must not be negative")
	}
	if r.BreakerCooldown < 0 {
		return fmt.Errorf("sink.redis.breaker_cooldown must not be negative")
	}

	// ------------------------------------------------------------
	// STATUS MIRROR BLOCK PLACEMENT
	// ------------------------------------------------------------

	sm := cfg.StatusMirror
	if sm.Endpoint != "" {
		if sm.MaxDevices < 0 {
			return fmt.Errorf("status_mirror.max_devices must not be negative")
		}

		// key = index
		owner := make(map[uint16]string)
		for id, idx := range sm.Slots {
			for i := 0; i < len(id); i++ {
				if id[i] > 0x7F {
					return fmt.Errorf("status_mirror.slots: device id %q must be ASCII", id)
				}
			}
			if sm.MaxDevices > 0 && int(idx) >= sm.MaxDevices {
				return fmt.Errorf("status_mirror.slots: device %q index %d >= max_devices %d", id, idx, sm.MaxDevices)
			}
			if prev, exists := owner[idx]; exists {
				a, b := prev, id
				if b < a {
					a, b = b, a
				}
				return fmt.Errorf("status_mirror.slots collision: index %d used by %q and %q", idx, a, b)
			}
			owner[idx] = id
		}

		// the whole mirror must fit in the 16-bit register space
		n := sm.MaxDevices
		if n == 0 {
			n = DefaultStatusMaxDevices
		}
		if end := int(sm.BaseAddress) + n*statusSlotsPerDevice; end > 0x10000 {
			return fmt.Errorf("status_mirror: base_address %d + %d devices exceeds register space", sm.BaseAddress, n)
		}
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", cfg.Log.Format)
	}

	return nil
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
				return false
			}
		}
	}
	return true
}
