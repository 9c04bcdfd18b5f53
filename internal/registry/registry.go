// internal/registry/registry.go
package registry

import (
	"errors"
	"strings"

	"github.com/rx178nwj/plant-dashboard/internal/protocol"
)

// ErrDeviceNotFound is returned by Get for unknown ids.
var ErrDeviceNotFound = errors.New("registry: device not found")

// Device types as stored in devices.device_type.
const (
	TypePlantSensor     = "plant_sensor"
	TypeSwitchBotPrefix = "switchbot_"
)

// Connection states written back by MarkSeen.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// v2 firmware advertises under this name prefix.
const v2NamePrefix = "PlantMonitor_30_"

// Device is one registry row.
type Device struct {
	ID             string `json:"device_id"`
	Name           string `json:"device_name"`
	MAC            string `json:"mac_address"`
	Type           string `json:"device_type"`
	PayloadVersion int    `json:"data_version"`
}

// Active reports whether the device speaks the command/response protocol.
func (d Device) Active() bool { return d.Type == TypePlantSensor }

// Passive reports whether the device is read from broadcasts only.
func (d Device) Passive() bool { return strings.HasPrefix(d.Type, TypeSwitchBotPrefix) }

// NormalizeVersion maps a stored data_version to 1..3; unknown values become 1.
func NormalizeVersion(v int) int {
	switch v {
	case protocol.PayloadV1, protocol.PayloadV2, protocol.PayloadV3:
		return v
	default:
		return protocol.PayloadV1
	}
}

// GuessVersion infers the payload version from the advertised name when the
// registry has no data_version.
func GuessVersion(name string) int {
	if strings.HasPrefix(name, v2NamePrefix) {
		return protocol.PayloadV2
	}
	return protocol.PayloadV1
}
