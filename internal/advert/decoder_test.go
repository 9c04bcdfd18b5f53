package advert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_MeterPlus(t *testing.T) {
	// model 0x69, battery 85 %, 24.4 C, 55 %
	frame := []byte{0x69, 0x55, 0x00, 0x04, 0x98, 0x37}

	r, err := Decode(map[string][]byte{CommonServiceUUID: frame})
	require.NoError(t, err)
	assert.Equal(t, KindMeterPlus, r.Model)
	assert.InDelta(t, 24.4, r.Temperature, 1e-9)
	assert.Equal(t, 55, r.Humidity)
	assert.Equal(t, 85, r.Battery)
	assert.Nil(t, r.CO2)
}

func TestDecode_MeterPlusBelowFreezing(t *testing.T) {
	frame := []byte{0xE9, 0xE4, 0x00, 0x05, 0x03, 0x40}

	r, err := Decode(map[string][]byte{CommonServiceUUID: frame})
	require.NoError(t, err)
	assert.InDelta(t, -3.5, r.Temperature, 1e-9)
	assert.Equal(t, 64, r.Humidity)
	assert.Equal(t, 100, r.Battery)
}

func TestDecode_CO2Meter(t *testing.T) {
	frame := []byte{0x63, 0x5A, 0x00, 0x00, 0x07, 0x16, 0x2D, 0x20, 0x03}

	r, err := Decode(map[string][]byte{CommonServiceUUID: frame})
	require.NoError(t, err)
	assert.Equal(t, KindCO2Meter, r.Model)
	assert.InDelta(t, 22.7, r.Temperature, 1e-9)
	assert.Equal(t, 45, r.Humidity)
	assert.Equal(t, 90, r.Battery)
	require.NotNil(t, r.CO2)
	assert.Equal(t, uint16(800), *r.CO2)
}

func TestDecode_Legacy(t *testing.T) {
	frame := []byte{0x54, 0x00, 0x64, 0x02, 0x95, 0x30}

	r, err := Decode(map[string][]byte{"CBA20D00-224D-11E6-9FB8-0002A5D5C51B": frame})
	require.NoError(t, err)
	assert.Equal(t, KindMeter, r.Model)
	assert.InDelta(t, 21.2, r.Temperature, 1e-9)
	assert.Equal(t, 48, r.Humidity)
	assert.Equal(t, 100, r.Battery)
}

func TestDecode_BotHasNoReading(t *testing.T) {
	_, err := Decode(map[string][]byte{CommonServiceUUID: {0x48, 0x50, 0x00}})
	assert.ErrorIs(t, err, ErrNoReading)
}

func TestDecode_UnknownModelKeepsRaw(t *testing.T) {
	frame := []byte{0x7B, 0x10, 0xAA}
	_, err := Decode(map[string][]byte{CommonServiceUUID: frame})
	require.ErrorIs(t, err, ErrUnknownModel)

	var um *UnknownModelError
	require.True(t, errors.As(err, &um))
	assert.Equal(t, byte(0x7B), um.Model)
	assert.Equal(t, frame, um.Raw)
	assert.Contains(t, err.Error(), "7b10aa")
}

func TestDecode_ShortAndMissing(t *testing.T) {
	_, err := Decode(map[string][]byte{CommonServiceUUID: {0x69, 0x10, 0x00}})
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = Decode(map[string][]byte{LegacyServiceUUID: {0x00}})
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = Decode(map[string][]byte{"0000180f-0000-1000-8000-00805f9b34fb": {0x01}})
	assert.ErrorIs(t, err, ErrNoServiceData)
}
