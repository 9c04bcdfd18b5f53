// internal/radio/radio.go
package radio

import (
	"context"
	"errors"
	"strings"
)

// ErrLinkClosed is returned by Link operations after Disconnect.
var ErrLinkClosed = errors.New("radio: link closed")

// Advertisement is one observed broadcast.
// ServiceData keys are lower-case service UUID strings.
type Advertisement struct {
	Address      string
	Name         string
	RSSI         int16
	ServiceUUIDs []string
	ServiceData  map[string][]byte
}

// Adapter abstracts the host radio.
// The session and the poller depend on this contract only.
type Adapter interface {
	// Scan delivers advertisements to fn until fn returns false or ctx is done.
	// It returns ctx.Err() when the context ended the scan.
	Scan(ctx context.Context, fn func(Advertisement) bool) error

	// Connect opens a link to addr and resolves the command/response characteristics.
	Connect(ctx context.Context, addr string) (Link, error)
}

// Link is one open connection to a device exposing the command service.
type Link interface {
	// Subscribe enables notifications on the response characteristic.
	// fn may run on a backend goroutine.
	Subscribe(fn func([]byte)) error
	Unsubscribe() error

	// Write sends one frame to the command characteristic.
	Write(frame []byte) error

	Disconnect() error
	Connected() bool
}

// NormalizeMAC upper-cases a colon separated address for comparisons.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

// FindDevice scans until an advertisement from mac is seen.
// Returns ctx.Err() when the deadline passes first.
func FindDevice(ctx context.Context, a Adapter, mac string) (Advertisement, error) {
	want := NormalizeMAC(mac)

	var found Advertisement
	var ok bool

	err := a.Scan(ctx, func(adv Advertisement) bool {
		if NormalizeMAC(adv.Address) != want {
			return true
		}
		found, ok = adv, true
		return false
	})
	if ok {
		return found, nil
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = context.DeadlineExceeded
	}
	return Advertisement{}, err
}
