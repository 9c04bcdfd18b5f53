// internal/protocol/commands.go
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ---- RADIO IDENTIFIERS ----

// Private sensor protocol (GATT).
const (
	ServiceUUID            = "59462f12-9543-9999-12c8-58b459a2712d"
	CommandCharacteristic  = "6a3b2c1d-4e5f-6a7b-8c9d-e0f123456791" // write
	ResponseCharacteristic = "6a3b2c1d-4e5f-6a7b-8c9d-e0f123456792" // notify
)

// ---- COMMAND IDS ----

const (
	CmdGetSensorData         uint8 = 0x01
	CmdSetWateringThresholds uint8 = 0x02
	CmdGetDeviceInfo         uint8 = 0x06
	CmdControlLED            uint8 = 0x0B
)

// CommandName is for logs only.
func CommandName(id uint8) string {
	switch id {
	case CmdGetSensorData:
		return "get_sensor_data"
	case CmdSetWateringThresholds:
		return "set_watering_thresholds"
	case CmdGetDeviceInfo:
		return "get_device_info"
	case CmdControlLED:
		return "control_led"
	default:
		return fmt.Sprintf("cmd_0x%02x", id)
	}
}

// ---- COMMAND PAYLOADS ----

// WateringThresholds is the set-thresholds payload: two little-endian u16 millivolt values.
type WateringThresholds struct {
	Dry uint16
	Wet uint16
}

// Encode returns the 4-byte wire payload.
func (w WateringThresholds) Encode() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint16(out[0:2], w.Dry)
	binary.LittleEndian.PutUint16(out[2:4], w.Wet)
	return out
}

// LED is the indicator-light actuator payload.
type LED struct {
	Red        uint8
	Green      uint8
	Blue       uint8
	Brightness uint8
	DurationMs uint16
}

// Encode returns the 6-byte wire payload: four u8 then a little-endian u16.
func (l LED) Encode() []byte {
	out := make([]byte, 6)
	out[0] = l.Red
	out[1] = l.Green
	out[2] = l.Blue
	out[3] = l.Brightness
	binary.LittleEndian.PutUint16(out[4:6], l.DurationMs)
	return out
}

// ---- DEVICE INFO ----

// device_info_t (packed):
//
//	0   name[32]
//	32  firmware_version[16]
//	48  hardware_version[16]
//	64  uptime_seconds u32
//	68  total_sensor_readings u32
const DeviceInfoSize = 72

// DeviceInfo is the CmdGetDeviceInfo response.
type DeviceInfo struct {
	Name            string `json:"device_name"`
	FirmwareVersion string `json:"firmware_version"`
	HardwareVersion string `json:"hardware_version"`
	UptimeSeconds   uint32 `json:"uptime_seconds"`
	TotalReadings   uint32 `json:"total_sensor_readings"`
}

// DecodeDeviceInfo decodes a device_info_t payload.
func DecodeDeviceInfo(p []byte) (DeviceInfo, error) {
	if len(p) < DeviceInfoSize {
		return DeviceInfo{}, fmt.Errorf("%w: device info %d bytes, want %d", ErrShortPayload, len(p), DeviceInfoSize)
	}
	return DeviceInfo{
		Name:            cString(p[0:32]),
		FirmwareVersion: cString(p[32:48]),
		HardwareVersion: cString(p[48:64]),
		UptimeSeconds:   binary.LittleEndian.Uint32(p[64:68]),
		TotalReadings:   binary.LittleEndian.Uint32(p[68:72]),
	}, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
