// internal/poller/types.go
package poller

import (
	"time"

	"github.com/rx178nwj/plant-dashboard/internal/advert"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
)

// Mode is how a device is read.
type Mode string

const (
	ModeActive  Mode = "active"  // command/response over a connection
	ModePassive Mode = "passive" // broadcast frames only
)

// ModeOf classifies a registry device.
func ModeOf(d registry.Device) Mode {
	if d.Passive() {
		return ModePassive
	}
	return ModeActive
}

// PollResult is the outcome of one device poll.
// Exactly one of Reading/Broadcast is set when Err is nil; both are nil otherwise.
type PollResult struct {
	DeviceID   string
	DeviceName string
	Mode       Mode
	At         time.Time
	Duration   time.Duration

	// PayloadVersion is the decoded layout on success, the registry hint on failure,
	// and 0 for broadcast devices.
	PayloadVersion int

	Reading   *protocol.Reading
	Broadcast *advert.Reading

	Err error // non-nil means the poll failed
}

// OK reports whether the poll produced a reading.
func (r PollResult) OK() bool { return r.Err == nil }
