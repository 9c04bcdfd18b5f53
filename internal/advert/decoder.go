// internal/advert/decoder.go
package advert

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Service data identifiers used by third-party climate sensors.
const (
	// CommonServiceUUID carries a model byte and a per-model layout.
	CommonServiceUUID = "0000fd3d-0000-1000-8000-00805f9b34fb"

	// LegacyServiceUUID is the original single-model meter.
	LegacyServiceUUID = "cba20d00-224d-11e6-9fb8-0002a5d5c51b"
)

// Model bytes under CommonServiceUUID (low 7 bits of byte 0).
const (
	ModelMeterPlus byte = 0x69
	ModelCO2Meter  byte = 0x63
	ModelBot       byte = 0x48 // switch actuator, no sensor data
)

// ModelKind names a decoded model. Values match the registry's device_type column.
type ModelKind string

const (
	KindMeter     ModelKind = "switchbot_meter"
	KindMeterPlus ModelKind = "switchbot_meter_plus"
	KindCO2Meter  ModelKind = "switchbot_co2_meter"
)

var (
	// ErrNoServiceData means neither known identifier was present.
	ErrNoServiceData = errors.New("advert: no known service data")

	// ErrShortFrame means the service data was shorter than its model's layout.
	ErrShortFrame = errors.New("advert: service data too short")

	// ErrNoReading means the model is known but carries no sensor data.
	ErrNoReading = errors.New("advert: model carries no sensor reading")

	// ErrUnknownModel means the model byte is not recognised. Callers log the raw bytes.
	ErrUnknownModel = errors.New("advert: unknown model")
)

// Reading is one decoded broadcast.
type Reading struct {
	Model       ModelKind `json:"type"`
	Temperature float64   `json:"temperature"`
	Humidity    int       `json:"humidity"`
	Battery     int       `json:"battery_level"`
	CO2         *uint16   `json:"co2,omitempty"`
}

// UnknownModelError keeps the raw frame so the caller can log it.
type UnknownModelError struct {
	Model byte
	Raw   []byte
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("advert: unknown model 0x%02x raw=%s", e.Model, hex.EncodeToString(e.Raw))
}

func (e *UnknownModelError) Unwrap() error { return ErrUnknownModel }

// Decode selects a layout by service identifier. Keys are compared case-insensitively.
func Decode(serviceData map[string][]byte) (Reading, error) {
	if b, ok := lookup(serviceData, CommonServiceUUID); ok {
		return decodeCommon(b)
	}
	if b, ok := lookup(serviceData, LegacyServiceUUID); ok {
		return decodeLegacy(b)
	}
	return Reading{}, ErrNoServiceData
}

func lookup(m map[string][]byte, id string) ([]byte, bool) {
	if b, ok := m[id]; ok {
		return b, true
	}
	for k, b := range m {
		if strings.EqualFold(k, id) {
			return b, true
		}
	}
	return nil, false
}

func decodeCommon(b []byte) (Reading, error) {
	if len(b) < 2 {
		return Reading{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}

	model := b[0] & 0x7f
	battery := int(b[1] & 0x7f)

	switch model {
	case ModelMeterPlus:
		if len(b) < 6 {
			return Reading{}, fmt.Errorf("%w: meter plus %d bytes", ErrShortFrame, len(b))
		}
		return Reading{
			Model:       KindMeterPlus,
			Temperature: signedTemp(b[3]&0x0f, b[4]),
			Humidity:    int(b[5] & 0x7f),
			Battery:     battery,
		}, nil

	case ModelCO2Meter:
		if len(b) < 9 {
			return Reading{}, fmt.Errorf("%w: co2 meter %d bytes", ErrShortFrame, len(b))
		}
		co2 := binary.LittleEndian.Uint16(b[7:9])
		return Reading{
			Model:       KindCO2Meter,
			Temperature: float64(b[5]&0x7f) + float64(b[4])/10.0,
			Humidity:    int(b[6] & 0x7f),
			Battery:     battery,
			CO2:         &co2,
		}, nil

	case ModelBot:
		return Reading{}, ErrNoReading

	default:
		raw := make([]byte, len(b))
		copy(raw, b)
		return Reading{}, &UnknownModelError{Model: model, Raw: raw}
	}
}

func decodeLegacy(b []byte) (Reading, error) {
	if len(b) < 6 {
		return Reading{}, fmt.Errorf("%w: legacy meter %d bytes", ErrShortFrame, len(b))
	}
	return Reading{
		Model:       KindMeter,
		Temperature: signedTemp(b[3], b[4]),
		Humidity:    int(b[5] & 0x7f),
		Battery:     int(b[2] & 0x7f),
	}, nil
}

// signedTemp combines tenths and whole degrees; bit 7 of whole set means above freezing.
func signedTemp(tenths, whole byte) float64 {
	t := float64(whole&0x7f) + float64(tenths)/10.0
	if whole&0x80 == 0 {
		t = -t
	}
	return t
}
