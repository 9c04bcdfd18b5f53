package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rx178nwj/plant-dashboard/internal/cmdqueue"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
)

const sample = `
daemon:
  poll_interval: 30s
  inter_device_delay: 1s
radio:
  broadcast_scan_timeout: 8s
session:
  reconnect_attempts: 3
health:
  window: 20
  cooldown: 5m
registry:
  path: /var/lib/plant/plant_monitor.db
  mark_seen: true
sink:
  file: /var/log/plant/readings.jsonl
  redis:
    addr: 127.0.0.1:6379
    channel: plant:readings
    list_key: "plant:%s:readings"
status_mirror:
  endpoint: 127.0.0.1:1502
  unit_id: 1
  slots:
    plant_sensor_01: 0
    switchbot_meter_01: 1
metrics:
  listen: ":9100"
log:
  level: debug
  format: json
`

func TestLoad_ParsesDurationsAndSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensord.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 30*time.Second, cfg.Daemon.PollInterval)
	assert.Equal(t, 8*time.Second, cfg.Radio.BroadcastScanTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Health.Cooldown)
	assert.True(t, cfg.Registry.MarkSeen)
	assert.Equal(t, "plant:%s:readings", cfg.Sink.Redis.ListKey)

	Normalize(cfg)
	assert.Equal(t, uint32(DefaultRedisBreakerFailures), cfg.Sink.Redis.BreakerFailures)
	assert.Equal(t, DefaultRedisBreakerCooldown, cfg.Sink.Redis.BreakerCooldown)
	assert.Equal(t, uint16(1), cfg.StatusMirror.Slots["switchbot_meter_01"])
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("daemon:\n  poll_intervall: 5s\n"))
	assert.Error(t, err)
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, DefaultPollInterval, cfg.Daemon.PollInterval)
	assert.Equal(t, 2*DefaultPollInterval, cfg.Daemon.StaleAfter)
	assert.Equal(t, DefaultInterDeviceDelay, cfg.Daemon.InterDeviceDelay)
	assert.Equal(t, DefaultErrorBackoff, cfg.Daemon.ErrorBackoff)
	assert.Equal(t, DefaultStabilizationWait, cfg.Daemon.StabilizationWait)
	assert.Equal(t, DefaultReadAttempts, cfg.Daemon.ReadAttempts)

	assert.Equal(t, protocol.ServiceUUID, cfg.Radio.ServiceUUID)
	assert.Equal(t, DefaultRestartCommand, cfg.Radio.RestartCommand)

	assert.Equal(t, DefaultScanTimeout, cfg.Session.ScanTimeout)
	assert.Equal(t, DefaultReconnectAttempts, cfg.Session.ReconnectAttempts)
	assert.Equal(t, DefaultBackoffBase, cfg.Session.BackoffBase)

	assert.Equal(t, DefaultHealthWindow, cfg.Health.Window)
	assert.Equal(t, DefaultHealthThreshold, cfg.Health.Threshold)
	assert.Equal(t, DefaultHealthCooldown, cfg.Health.Cooldown)

	assert.Equal(t, cmdqueue.DefaultPath, cfg.Queue.Path)
	assert.Equal(t, "-", cfg.Sink.File)

	// opt-in sections stay off
	assert.Zero(t, cfg.StatusMirror.MaxDevices)
	assert.Empty(t, cfg.Metrics.Path)
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{Daemon: DaemonConfig{PollInterval: 5 * time.Second, StaleAfter: time.Minute}}
	Normalize(cfg)
	assert.Equal(t, 5*time.Second, cfg.Daemon.PollInterval)
	assert.Equal(t, time.Minute, cfg.Daemon.StaleAfter)
}

func TestNormalize_StaleFollowsPollInterval(t *testing.T) {
	cfg := &Config{Daemon: DaemonConfig{PollInterval: 5 * time.Second}}
	Normalize(cfg)
	assert.Equal(t, 10*time.Second, cfg.Daemon.StaleAfter)
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, Config{}, *cfg)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]Config{
		"negative interval": {Daemon: DaemonConfig{PollInterval: -time.Second}},
		"threshold > 1":     {Health: HealthConfig{Threshold: 1.5}},
		"bad uuid":          {Radio: RadioConfig{ServiceUUID: "not-a-uuid"}},
		"redis no target":   {Sink: SinkConfig{Redis: RedisSinkConfig{Addr: "x:6379"}}},
		"bad log format":    {Log: LogConfig{Format: "xml"}},
		"negative breaker cooldown": {Sink: SinkConfig{Redis: RedisSinkConfig{
			Addr: "x:6379", Channel: "c", BreakerCooldown: -time.Second,
		}}},
		"slot collision": {StatusMirror: StatusMirrorConfig{
			Endpoint: "ep", Slots: map[string]uint16{"a": 1, "b": 1},
		}},
		"slot beyond max": {StatusMirror: StatusMirrorConfig{
			Endpoint: "ep", MaxDevices: 2, Slots: map[string]uint16{"a": 2},
		}},
		"register overflow": {StatusMirror: StatusMirrorConfig{
			Endpoint: "ep", BaseAddress: 65000, MaxDevices: 100,
		}},
	}
	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(&c))
		})
	}
}

func TestValidate_SlotsIgnoredWhenMirrorDisabled(t *testing.T) {
	cfg := &Config{StatusMirror: StatusMirrorConfig{Slots: map[string]uint16{"a": 1, "b": 1}}}
	assert.NoError(t, Validate(cfg))
}
