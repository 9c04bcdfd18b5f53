// internal/config/config.go
package config

import "time"

type Config struct {
	Daemon       DaemonConfig       `yaml:"daemon"`
	Radio        RadioConfig        `yaml:"radio"`
	Session      SessionConfig      `yaml:"session"`
	Health       HealthConfig       `yaml:"health"`
	Queue        QueueConfig        `yaml:"queue"`
	Registry     RegistryConfig     `yaml:"registry"`
	Sink         SinkConfig         `yaml:"sink"`
	StatusMirror StatusMirrorConfig `yaml:"status_mirror"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Log          LogConfig          `yaml:"log"`
}

// ---- DAEMON LOOP ----

type DaemonConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	InterDeviceDelay  time.Duration `yaml:"inter_device_delay"`
	ErrorBackoff      time.Duration `yaml:"error_backoff"`
	StabilizationWait time.Duration `yaml:"stabilization_wait"`

	// per-device read retry
	ReadAttempts   int           `yaml:"read_attempts"`
	ReadRetryDelay time.Duration `yaml:"read_retry_delay"`

	// StaleAfter marks a device stale in the status mirror; 0 means two poll intervals.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// ---- RADIO ----

type RadioConfig struct {
	ServiceUUID            string `yaml:"service_uuid"`
	CommandCharacteristic  string `yaml:"command_characteristic"`
	ResponseCharacteristic string `yaml:"response_characteristic"`

	// BroadcastScanTimeout bounds one passive scan for a broadcast-only device.
	BroadcastScanTimeout time.Duration `yaml:"broadcast_scan_timeout"`

	// RestartCommand restarts the radio stack, argv form.
	RestartCommand []string `yaml:"restart_command"`
}

// ---- SESSION ----

type SessionConfig struct {
	ScanTimeout       time.Duration `yaml:"scan_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ResponseTimeout   time.Duration `yaml:"response_timeout"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	BackoffBase       float64       `yaml:"backoff_base"`
}

// ---- HEALTH ----

type HealthConfig struct {
	Disabled  bool          `yaml:"disabled"`
	Window    int           `yaml:"window"`
	Threshold float64       `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// ---- COMMAND QUEUE ----

type QueueConfig struct {
	Path string `yaml:"path"`

	// DisableWatch turns off filesystem wake-ups; the queue is then drained once per cycle.
	DisableWatch bool `yaml:"disable_watch"`
}

// ---- REGISTRY ----

type RegistryConfig struct {
	Path string `yaml:"path"`

	// MarkSeen writes connection_status/last_seen/battery_level back after each poll.
	MarkSeen bool `yaml:"mark_seen"`
}

// ---- SINK ----

type SinkConfig struct {
	// File receives one JSON line per poll. "-" is stdout; empty disables.
	File  string          `yaml:"file"`
	Redis RedisSinkConfig `yaml:"redis"`
}

type RedisSinkConfig struct {
	Addr     string `yaml:"addr"` // empty disables
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	ListKey  string `yaml:"list_key"`
	ListMax  int64  `yaml:"list_max"`

	// consecutive failures before publishing is suspended for breaker_cooldown
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// ---- STATUS MIRROR ----

type StatusMirrorConfig struct {
	Endpoint    string        `yaml:"endpoint"` // empty disables
	UnitID      uint8         `yaml:"unit_id"`
	BaseAddress uint16        `yaml:"base_address"`
	MaxDevices  int           `yaml:"max_devices"`
	Timeout     time.Duration `yaml:"timeout"`

	// Slots pins device ids to block indexes; others are placed on first poll.
	Slots map[string]uint16 `yaml:"slots"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables
	Path   string `yaml:"path"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stdout | stderr | file path
}
