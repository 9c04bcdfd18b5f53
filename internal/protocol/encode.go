// internal/protocol/encode.go
package protocol

import (
	"encoding/binary"
	"math"
)

// EncodeReading produces the firmware byte layout for r.
// DataVersion 0 yields the 56-byte legacy layout, 2 the 96-byte layout and
// 3 the 104-byte layout. Used by test fakes.
func EncodeReading(r Reading) []byte {
	if r.DataVersion == 0 {
		out := make([]byte, LegacyPayloadSize)
		copy(out[0:calendarSize], EncodeCalendar(r.DeviceTime))
		putF32(out, 36, r.Illuminance)
		putF32(out, 40, r.Temperature)
		putF32(out, 44, r.Humidity)
		putF32(out, 48, r.SoilMoisture)
		out[52] = boolByte(r.SensorError)
		return out
	}

	size := V2PayloadSize
	if r.DataVersion >= PayloadV3 {
		size = V3PayloadSize
	}
	out := make([]byte, size)
	out[0] = r.DataVersion
	copy(out[4:4+calendarSize], EncodeCalendar(r.DeviceTime))
	putF32(out, 40, r.Illuminance)
	putF32(out, 44, r.Temperature)
	putF32(out, 48, r.Humidity)
	putF32(out, 52, r.SoilMoisture)
	out[56] = boolByte(r.SensorError)
	for i := 0; i < 4 && i < len(r.ProbeTemperatures); i++ {
		putF32(out, 60+4*i, r.ProbeTemperatures[i])
	}
	if r.ProbeCount != nil {
		out[76] = *r.ProbeCount
	}
	for i := 0; i < 4 && i < len(r.Capacitance); i++ {
		putF32(out, 80+4*i, r.Capacitance[i])
	}
	if size == V3PayloadSize && r.AuxTemperature != nil {
		putF32(out, 96, *r.AuxTemperature)
		out[100] = 1
	}
	return out
}

// EncodeDeviceInfo is the inverse of DecodeDeviceInfo. Strings are truncated to their fields.
func EncodeDeviceInfo(d DeviceInfo) []byte {
	out := make([]byte, DeviceInfoSize)
	copy(out[0:31], d.Name)
	copy(out[32:47], d.FirmwareVersion)
	copy(out[48:63], d.HardwareVersion)
	binary.LittleEndian.PutUint32(out[64:68], d.UptimeSeconds)
	binary.LittleEndian.PutUint32(out[68:72], d.TotalReadings)
	return out
}

func putF32(b []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(b[off:off+4], math.Float32bits(v))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
