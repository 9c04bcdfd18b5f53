//go:build !linux

// internal/radio/bluez_other.go
package radio

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform is returned where no BlueZ daemon exists.
var ErrUnsupportedPlatform = errors.New("radio: BlueZ backend is linux only")

type BlueZConfig struct {
	ServiceUUID            string
	CommandCharacteristic  string
	ResponseCharacteristic string
}

type BlueZ struct{}

func NewBlueZ(BlueZConfig) (*BlueZ, error) { return nil, ErrUnsupportedPlatform }

func (*BlueZ) Scan(context.Context, func(Advertisement) bool) error { return ErrUnsupportedPlatform }

func (*BlueZ) Connect(context.Context, string) (Link, error) { return nil, ErrUnsupportedPlatform }
