// internal/writer/types.go
package writer

import (
	"context"
	"time"

	"github.com/rx178nwj/plant-dashboard/internal/poller"
	"github.com/rx178nwj/plant-dashboard/internal/status"
)

// Record is one sink line. Reading is null on failure; Error is null on success.
type Record struct {
	DeviceID       string    `json:"device_id"`
	DeviceName     string    `json:"device_name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	PayloadVersion int       `json:"payload_version"`
	Reading        any       `json:"reading"`
	Error          *string   `json:"error"`
	ErrorCode      uint16    `json:"error_code,omitempty"`
}

// NewRecord converts a poll result into its sink record.
func NewRecord(res poller.PollResult) Record {
	r := Record{
		DeviceID:       res.DeviceID,
		DeviceName:     res.DeviceName,
		Timestamp:      res.At.UTC(),
		PayloadVersion: res.PayloadVersion,
	}

	switch {
	case res.Err != nil:
		msg := res.Err.Error()
		r.Error = &msg
		r.ErrorCode = status.CodeOf(res.Err)
	case res.Reading != nil:
		r.Reading = res.Reading
	case res.Broadcast != nil:
		r.Reading = res.Broadcast
	}
	return r
}

// Writer delivers records to one destination.
type Writer interface {
	Write(ctx context.Context, r Record) error
	Close() error
}
