// internal/session/errors.go
package session

import "errors"

// Link-level failure kinds. Transient ones are listed in TransientErrors.
var (
	ErrScanTimeout         = errors.New("session: device not found before scan timeout")
	ErrConnectTimeout      = errors.New("session: connect timed out")
	ErrWriteFailed         = errors.New("session: command write failed")
	ErrNotificationTimeout = errors.New("session: no response notification before timeout")
	ErrNotConnected        = errors.New("session: not connected")

	// ErrDeviceStatus means the device answered with a non-zero status byte.
	ErrDeviceStatus = errors.New("session: device returned error status")
)

// TransientErrors are retried by the poll wrapper.
var TransientErrors = []error{
	ErrScanTimeout,
	ErrConnectTimeout,
	ErrWriteFailed,
	ErrNotificationTimeout,
	ErrNotConnected,
}

// StatusError carries the device status byte.
type StatusError struct {
	CommandID uint8
	Status    uint8
}

func (e *StatusError) Error() string {
	return ErrDeviceStatus.Error() + ": " + statusText(e.CommandID, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrDeviceStatus }
