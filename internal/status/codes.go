// internal/status/codes.go
package status

import (
	"context"
	"errors"

	"github.com/rx178nwj/plant-dashboard/internal/advert"
	"github.com/rx178nwj/plant-dashboard/internal/cmdqueue"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/session"
)

// Error codes written to SlotLastErrorCode and the sink's error_code field.
const (
	CodeNone    uint16 = 0
	CodeGeneric uint16 = 1

	CodeScanTimeout         uint16 = 10
	CodeConnectTimeout      uint16 = 11
	CodeWriteFailed         uint16 = 12
	CodeNotificationTimeout uint16 = 13
	CodeNotConnected        uint16 = 14

	CodeHeaderTooShort           uint16 = 20
	CodeLengthMismatch           uint16 = 21
	CodeUnsupportedPayloadLength uint16 = 22
	CodeUnsupportedDataVersion   uint16 = 23
	CodeShortPayload             uint16 = 24

	CodeNoServiceData uint16 = 30
	CodeShortFrame    uint16 = 31
	CodeNoReading     uint16 = 32
	CodeUnknownModel  uint16 = 33

	CodeDeviceNotFound   uint16 = 40
	CodeMalformedCommand uint16 = 41
	CodeUnknownCommand   uint16 = 42

	CodeTimeout  uint16 = 50
	CodeCanceled uint16 = 51

	// CodeDeviceStatusBase + status byte for non-zero device replies.
	CodeDeviceStatusBase uint16 = 0x100
)

var codeTable = []struct {
	err  error
	code uint16
}{
	{session.ErrScanTimeout, CodeScanTimeout},
	{session.ErrConnectTimeout, CodeConnectTimeout},
	{session.ErrWriteFailed, CodeWriteFailed},
	{session.ErrNotificationTimeout, CodeNotificationTimeout},
	{session.ErrNotConnected, CodeNotConnected},

	{protocol.ErrHeaderTooShort, CodeHeaderTooShort},
	{protocol.ErrLengthMismatch, CodeLengthMismatch},
	{protocol.ErrUnsupportedPayloadLength, CodeUnsupportedPayloadLength},
	{protocol.ErrUnsupportedDataVersion, CodeUnsupportedDataVersion},
	{protocol.ErrShortPayload, CodeShortPayload},

	{advert.ErrNoServiceData, CodeNoServiceData},
	{advert.ErrShortFrame, CodeShortFrame},
	{advert.ErrNoReading, CodeNoReading},
	{advert.ErrUnknownModel, CodeUnknownModel},

	{registry.ErrDeviceNotFound, CodeDeviceNotFound},
	{cmdqueue.ErrMalformedCommand, CodeMalformedCommand},
	{cmdqueue.ErrUnknownCommand, CodeUnknownCommand},

	{context.DeadlineExceeded, CodeTimeout},
	{context.Canceled, CodeCanceled},
}

// CodeOf maps an error to its status code. Unclassified errors are CodeGeneric.
func CodeOf(err error) uint16 {
	if err == nil {
		return CodeNone
	}

	var se *session.StatusError
	if errors.As(err, &se) {
		return CodeDeviceStatusBase + uint16(se.Status)
	}

	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeGeneric
}
