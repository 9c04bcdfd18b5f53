// internal/protocol/payload.go
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Sensor payload layouts. These are replayed against non-updatable firmware
// and MUST match byte-for-byte.
//
// Legacy (56 bytes, no version byte):
//
//	0   struct tm (9 x int32)
//	36  lux, temperature, humidity, soil_moisture (4 x float32)
//	52  sensor_error (1) + padding (3)
//
// Versioned (data_version 2/3):
//
//	0   data_version (1) + padding (3)
//	4   struct tm (9 x int32)
//	40  lux, temperature, humidity, soil_moisture (4 x float32)
//	56  sensor_error (1) + padding (3)
//	60  probe temperatures (4 x float32)
//	76  probe count (1) + padding (3)
//	80  capacitance channels (4 x float32)
//	96  aux temperature (float32)          v3 only
//	100 aux temperature valid (1) + pad(3) v3 only
const (
	LegacyPayloadSize = 56

	// Payloads longer than this carry an explicit data_version byte.
	VersionedPayloadThreshold = 70

	V2PayloadSize = 96
	V3PayloadSize = 104

	// v3 without trailing padding; the valid byte is the last field read.
	v3MinSize = 101

	calendarSize = 36
)

// Payload versions as stored in the device registry.
const (
	PayloadV1 = 1
	PayloadV2 = 2
	PayloadV3 = 3
)

// DeviceTime is the device-side C struct tm, field for field.
type DeviceTime struct {
	Sec   int32 `json:"tm_sec"`
	Min   int32 `json:"tm_min"`
	Hour  int32 `json:"tm_hour"`
	MDay  int32 `json:"tm_mday"`
	Mon   int32 `json:"tm_mon"`  // 0-based
	Year  int32 `json:"tm_year"` // years since 1900
	WDay  int32 `json:"tm_wday"`
	YDay  int32 `json:"tm_yday"`
	IsDST int32 `json:"tm_isdst"`
}

// Time converts the struct tm to a wall-clock time in loc.
// Out-of-range fields are normalised the way time.Date does.
func (t DeviceTime) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(
		int(t.Year)+1900,
		time.Month(t.Mon+1),
		int(t.MDay),
		int(t.Hour),
		int(t.Min),
		int(t.Sec),
		0,
		loc,
	)
}

// String renders "YYYY-MM-DD HH:MM:SS" without normalisation.
func (t DeviceTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		t.Year+1900, t.Mon+1, t.MDay, t.Hour, t.Min, t.Sec)
}

// Reading is a decoded sensor payload. Fields beyond the legacy set are
// nil when the layout does not carry them.
type Reading struct {
	// DataVersion is 0 for the legacy layout (no explicit version byte).
	DataVersion uint8 `json:"data_version,omitempty"`

	DeviceTime   DeviceTime `json:"device_time"`
	Datetime     string     `json:"datetime"`
	Illuminance  float32    `json:"light_lux"`
	Temperature  float32    `json:"temperature"`
	Humidity     float32    `json:"humidity"`
	SoilMoisture float32    `json:"soil_moisture"`
	SensorError  bool       `json:"sensor_error"`

	ProbeTemperatures []float32 `json:"soil_temperatures,omitempty"`
	ProbeCount        *uint8    `json:"soil_temperature_count,omitempty"`
	Capacitance       []float32 `json:"capacitance,omitempty"`

	// AuxTemperature is set only when the device flags it valid.
	AuxTemperature *float32 `json:"ext_temperature,omitempty"`
}

// Layout reports the effective payload version: 1 for legacy, otherwise DataVersion.
func (r Reading) Layout() int {
	if r.DataVersion == 0 {
		return PayloadV1
	}
	return int(r.DataVersion)
}

// DecodeSensorPayload decodes a sensor-data response payload.
//
// Dispatch is by length first, then by the explicit version byte. versionHint
// (the registry's payload_version) is consulted only when a versioned payload
// carries a version byte this decoder does not know.
func DecodeSensorPayload(payload []byte, declaredLength int, versionHint int) (Reading, error) {
	if declaredLength != len(payload) {
		return Reading{}, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, declaredLength, len(payload))
	}

	switch {
	case len(payload) == LegacyPayloadSize:
		return decodeLegacy(payload), nil

	case len(payload) > VersionedPayloadThreshold:
		version := payload[0]
		if version != PayloadV2 && version != PayloadV3 {
			if versionHint != PayloadV2 && versionHint != PayloadV3 {
				return Reading{}, fmt.Errorf("%w: version byte %d, hint %d", ErrUnsupportedDataVersion, version, versionHint)
			}
			version = uint8(versionHint)
		}
		if len(payload) < V2PayloadSize {
			return Reading{}, fmt.Errorf("%w: %d bytes (versioned layout needs >= %d)", ErrUnsupportedPayloadLength, len(payload), V2PayloadSize)
		}
		return decodeVersioned(payload, version), nil

	default:
		return Reading{}, fmt.Errorf("%w: %d bytes", ErrUnsupportedPayloadLength, len(payload))
	}
}

func decodeLegacy(p []byte) Reading {
	tm := decodeCalendar(p[0:calendarSize])
	return Reading{
		DeviceTime:   tm,
		Datetime:     tm.String(),
		Illuminance:  f32(p, 36),
		Temperature:  f32(p, 40),
		Humidity:     f32(p, 44),
		SoilMoisture: f32(p, 48),
		SensorError:  p[52] != 0,
	}
}

// decodeVersioned expects len(p) >= V2PayloadSize.
// v3 trailing fields are read only when present; missing means absent, not zero.
func decodeVersioned(p []byte, version uint8) Reading {
	tm := decodeCalendar(p[4 : 4+calendarSize])
	count := p[76]

	r := Reading{
		DataVersion:  version,
		DeviceTime:   tm,
		Datetime:     tm.String(),
		Illuminance:  f32(p, 40),
		Temperature:  f32(p, 44),
		Humidity:     f32(p, 48),
		SoilMoisture: f32(p, 52),
		SensorError:  p[56] != 0,
		ProbeTemperatures: []float32{
			f32(p, 60), f32(p, 64), f32(p, 68), f32(p, 72),
		},
		ProbeCount: &count,
		Capacitance: []float32{
			f32(p, 80), f32(p, 84), f32(p, 88), f32(p, 92),
		},
	}

	if version >= PayloadV3 && len(p) >= v3MinSize && p[100] != 0 {
		aux := f32(p, 96)
		r.AuxTemperature = &aux
	}
	return r
}

func decodeCalendar(b []byte) DeviceTime {
	return DeviceTime{
		Sec:   i32(b, 0),
		Min:   i32(b, 4),
		Hour:  i32(b, 8),
		MDay:  i32(b, 12),
		Mon:   i32(b, 16),
		Year:  i32(b, 20),
		WDay:  i32(b, 24),
		YDay:  i32(b, 28),
		IsDST: i32(b, 32),
	}
}

// EncodeCalendar is the inverse of decodeCalendar.
func EncodeCalendar(t DeviceTime) []byte {
	out := make([]byte, calendarSize)
	for i, v := range []int32{t.Sec, t.Min, t.Hour, t.MDay, t.Mon, t.Year, t.WDay, t.YDay, t.IsDST} {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

// CalendarOf builds a struct tm from t in its own location.
func CalendarOf(t time.Time) DeviceTime {
	isDST := int32(0)
	if t.IsDST() {
		isDST = 1
	}
	return DeviceTime{
		Sec:   int32(t.Second()),
		Min:   int32(t.Minute()),
		Hour:  int32(t.Hour()),
		MDay:  int32(t.Day()),
		Mon:   int32(t.Month()) - 1,
		Year:  int32(t.Year()) - 1900,
		WDay:  int32(t.Weekday()),
		YDay:  int32(t.YearDay()) - 1,
		IsDST: isDST,
	}
}

func i32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

func f32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}
