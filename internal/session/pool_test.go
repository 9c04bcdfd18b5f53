package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rx178nwj/plant-dashboard/internal/radio/radiotest"
)

var errUnknownDevice = errors.New("unknown device")

func TestPool_GetCreatesOnceFromResolver(t *testing.T) {
	lookups := 0
	resolve := func(_ context.Context, id string) (string, error) {
		lookups++
		if id != "dev-1" {
			return "", errUnknownDevice
		}
		return testMAC, nil
	}

	p, err := NewPool(radiotest.New(), fastConfig(), resolve, quietLogger())
	require.NoError(t, err)

	s1, err := p.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	s2, err := p.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, lookups)

	_, err = p.Get(context.Background(), "dev-x")
	assert.ErrorIs(t, err, errUnknownDevice)
	assert.Equal(t, 1, p.Len())
}

func TestPool_ForReplacesOnMACChange(t *testing.T) {
	a := radiotest.New(echoDevice(0, nil))
	p, err := NewPool(a, fastConfig(), func(context.Context, string) (string, error) { return "", errUnknownDevice }, quietLogger())
	require.NoError(t, err)

	s1, err := p.For("dev-1", testMAC)
	require.NoError(t, err)
	require.NoError(t, s1.Connect(context.Background()))

	same, err := p.For("dev-1", "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Same(t, s1, same)

	s2, err := p.For("dev-1", "AA:BB:CC:DD:EE:02")
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.False(t, s1.Connected())
}

func TestPool_MarkAllDisconnected(t *testing.T) {
	a := radiotest.New(echoDevice(0, nil))
	p, err := NewPool(a, fastConfig(), func(context.Context, string) (string, error) { return testMAC, nil }, quietLogger())
	require.NoError(t, err)

	s, err := p.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))

	p.MarkAllDisconnected()
	assert.False(t, s.Connected())
	assert.Equal(t, []string{"dev-1"}, p.IDs())
	assert.NoError(t, p.DisconnectAll())
}
