// internal/protocol/errors.go
package protocol

import "errors"

var (
	// ErrHeaderTooShort means a frame was shorter than its fixed header.
	ErrHeaderTooShort = errors.New("protocol: header too short")

	// ErrLengthMismatch means the declared payload length disagrees with the bytes present.
	ErrLengthMismatch = errors.New("protocol: payload length mismatch")

	// ErrUnsupportedPayloadLength means no known sensor layout has this length.
	// Fatal for the read, not for the session.
	ErrUnsupportedPayloadLength = errors.New("protocol: unsupported payload length")

	// ErrUnsupportedDataVersion means a versioned payload carried an unknown version byte
	// and no usable registry hint was available.
	ErrUnsupportedDataVersion = errors.New("protocol: unsupported data version")

	// ErrSequenceMismatch is a warning only: devices can lag one exchange behind.
	ErrSequenceMismatch = errors.New("protocol: sequence mismatch")

	// ErrPayloadTooLarge means a command payload does not fit the u16 length field.
	ErrPayloadTooLarge = errors.New("protocol: command payload too large")

	// ErrShortPayload means a fixed-layout payload (device info, ...) was truncated.
	ErrShortPayload = errors.New("protocol: payload too short")
)
