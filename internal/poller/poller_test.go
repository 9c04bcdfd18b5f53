package poller

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rx178nwj/plant-dashboard/internal/advert"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
	"github.com/rx178nwj/plant-dashboard/internal/radio/radiotest"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/session"
)

type fakeClient struct {
	ensureErr []error // consumed one per call; nil once exhausted
	readErr   []error
	reading   protocol.Reading

	ensures int
	reads   int
	hints   []int
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	e := (*errs)[0]
	*errs = (*errs)[1:]
	return e
}

func (f *fakeClient) EnsureConnected(context.Context) error {
	f.ensures++
	return pop(&f.ensureErr)
}

func (f *fakeClient) ReadSensor(_ context.Context, hint int) (protocol.Reading, error) {
	f.reads++
	f.hints = append(f.hints, hint)
	if err := pop(&f.readErr); err != nil {
		return protocol.Reading{}, err
	}
	return f.reading, nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() Config {
	return Config{
		ReadAttempts:         3,
		ReadRetryDelay:       time.Millisecond,
		BroadcastScanTimeout: 40 * time.Millisecond,
	}
}

func newPoller(t *testing.T, c Client, a *radiotest.Adapter) *Poller {
	t.Helper()
	if a == nil {
		a = radiotest.New()
	}
	p, err := New(testConfig(), func(registry.Device) (Client, error) { return c, nil }, a, quiet())
	require.NoError(t, err)
	return p
}

var plant = registry.Device{
	ID: "plant_sensor_01", Name: "PlantMonitor_30_0001", MAC: "AA:BB:CC:DD:EE:01",
	Type: registry.TypePlantSensor, PayloadVersion: protocol.PayloadV2,
}

var meter = registry.Device{
	ID: "switchbot_meter_01", Name: "Meter", MAC: "c1:00:00:00:00:01",
	Type: "switchbot_meter_plus",
}

func TestNew_Validation(t *testing.T) {
	ok := func(registry.Device) (Client, error) { return nil, nil }
	a := radiotest.New()

	_, err := New(testConfig(), nil, a, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), ok, nil, nil)
	assert.Error(t, err)

	c := testConfig()
	c.ReadAttempts = 0
	_, err = New(c, ok, a, nil)
	assert.Error(t, err)

	c = testConfig()
	c.BroadcastScanTimeout = 0
	_, err = New(c, ok, a, nil)
	assert.Error(t, err)
}

func TestPollOnce_ActiveSuccess(t *testing.T) {
	c := &fakeClient{reading: protocol.Reading{DataVersion: protocol.PayloadV3, Temperature: 21.5}}
	p := newPoller(t, c, nil)

	res := p.PollOnce(context.Background(), plant)
	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, ModeActive, res.Mode)
	require.NotNil(t, res.Reading)
	assert.Nil(t, res.Broadcast)
	assert.Equal(t, protocol.PayloadV3, res.PayloadVersion)
	assert.Equal(t, []int{protocol.PayloadV2}, c.hints)
}

func TestPollOnce_ActiveRetriesTransientErrors(t *testing.T) {
	c := &fakeClient{
		ensureErr: []error{session.ErrScanTimeout},
		readErr:   []error{session.ErrNotificationTimeout},
		reading:   protocol.Reading{DataVersion: protocol.PayloadV2},
	}
	p := newPoller(t, c, nil)

	res := p.PollOnce(context.Background(), plant)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, c.ensures)
	assert.Equal(t, 2, c.reads)
}

func TestPollOnce_ActiveExhausted(t *testing.T) {
	c := &fakeClient{readErr: []error{
		session.ErrNotificationTimeout, session.ErrNotificationTimeout, session.ErrNotificationTimeout,
	}}
	p := newPoller(t, c, nil)

	res := p.PollOnce(context.Background(), plant)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, session.ErrNotificationTimeout)
	assert.Nil(t, res.Reading)
	assert.Equal(t, plant.PayloadVersion, res.PayloadVersion)
	assert.Equal(t, 3, c.reads)
}

func TestPollOnce_ActiveDecodeErrorIsNotRetried(t *testing.T) {
	c := &fakeClient{readErr: []error{protocol.ErrUnsupportedPayloadLength}}
	p := newPoller(t, c, nil)

	res := p.PollOnce(context.Background(), plant)
	assert.ErrorIs(t, res.Err, protocol.ErrUnsupportedPayloadLength)
	assert.Equal(t, 1, c.reads)
}

func TestPollOnce_ClientFactoryError(t *testing.T) {
	boom := errors.New("no session")
	p, err := New(testConfig(), func(registry.Device) (Client, error) { return nil, boom }, radiotest.New(), quiet())
	require.NoError(t, err)

	res := p.PollOnce(context.Background(), plant)
	assert.ErrorIs(t, res.Err, boom)
}

func TestPollOnce_PassiveDecodesBroadcast(t *testing.T) {
	a := radiotest.New(
		&radiotest.Device{MAC: "11:11:11:11:11:11", ServiceData: map[string][]byte{advert.CommonServiceUUID: {0x69, 0x10, 0, 0x04, 0x90, 0x10}}},
		&radiotest.Device{MAC: "C1:00:00:00:00:01", ServiceData: map[string][]byte{advert.CommonServiceUUID: {0x69, 0x55, 0x00, 0x04, 0x98, 0x37}}},
	)
	p := newPoller(t, &fakeClient{}, a)

	res := p.PollOnce(context.Background(), meter)
	require.NoError(t, res.Err)
	assert.Equal(t, ModePassive, res.Mode)
	require.NotNil(t, res.Broadcast)
	assert.Nil(t, res.Reading)
	assert.InDelta(t, 24.4, res.Broadcast.Temperature, 1e-9)
	assert.Equal(t, 85, res.Broadcast.Battery)
	assert.Equal(t, 0, res.PayloadVersion)
}

func TestPollOnce_PassiveTimeout(t *testing.T) {
	a := radiotest.New(&radiotest.Device{MAC: meter.MAC, Hidden: true})
	p := newPoller(t, &fakeClient{}, a)

	res := p.PollOnce(context.Background(), meter)
	assert.ErrorIs(t, res.Err, session.ErrScanTimeout)
	assert.Nil(t, res.Broadcast)
}

func TestPollOnce_PassiveUnknownModelReported(t *testing.T) {
	a := radiotest.New(&radiotest.Device{
		MAC:         meter.MAC,
		ServiceData: map[string][]byte{advert.CommonServiceUUID: {0x7E, 0x10, 0x00}},
	})
	p := newPoller(t, &fakeClient{}, a)

	res := p.PollOnce(context.Background(), meter)
	assert.ErrorIs(t, res.Err, advert.ErrUnknownModel)
}

func TestSweep_SequentialWithDelay(t *testing.T) {
	c := &fakeClient{reading: protocol.Reading{DataVersion: protocol.PayloadV2}}
	p := newPoller(t, c, nil)

	devs := []registry.Device{plant, plant, plant}
	var got []PollResult
	start := time.Now()
	n := p.Sweep(context.Background(), devs, 20*time.Millisecond, func(r PollResult) { got = append(got, r) })

	assert.Equal(t, 3, n)
	assert.Len(t, got, 3)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSweep_StopsOnCancel(t *testing.T) {
	c := &fakeClient{reading: protocol.Reading{DataVersion: protocol.PayloadV2}}
	p := newPoller(t, c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	n := p.Sweep(ctx, []registry.Device{plant, plant, plant}, time.Hour, func(PollResult) { cancel() })
	assert.Equal(t, 1, n)
}
