// internal/radio/radiotest/fake.go
//
// Package radiotest is an in-memory radio.Adapter for tests.
package radiotest

import (
	"context"
	"errors"
	"sync"

	"github.com/rx178nwj/plant-dashboard/internal/radio"
)

// Device is one simulated peripheral.
type Device struct {
	MAC         string
	Name        string
	ServiceData map[string][]byte

	// Hidden devices never show up in scans.
	Hidden bool

	// ConnectErr fails Connect. BlockConnect makes Connect wait for the deadline.
	ConnectErr   error
	BlockConnect bool

	// WriteErr fails every Write on the link.
	WriteErr error

	// Respond maps one written frame to the notifications sent back. nil means silence.
	Respond func(frame []byte) [][]byte
}

// Adapter implements radio.Adapter over a fixed device set.
type Adapter struct {
	mu      sync.Mutex
	devices []*Device

	Scans    int
	Connects int
	Links    []*Link
}

// New returns an adapter serving devs.
func New(devs ...*Device) *Adapter {
	return &Adapter{devices: devs}
}

// Add registers another device.
func (a *Adapter) Add(d *Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices = append(a.devices, d)
}

func (a *Adapter) find(mac string) *Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range a.devices {
		if radio.NormalizeMAC(d.MAC) == radio.NormalizeMAC(mac) {
			return d
		}
	}
	return nil
}

func (a *Adapter) Scan(ctx context.Context, fn func(radio.Advertisement) bool) error {
	a.mu.Lock()
	a.Scans++
	devs := append([]*Device(nil), a.devices...)
	a.mu.Unlock()

	for _, d := range devs {
		if d.Hidden {
			continue
		}
		if !fn(radio.Advertisement{Address: d.MAC, Name: d.Name, ServiceData: d.ServiceData}) {
			return nil
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *Adapter) Connect(ctx context.Context, addr string) (radio.Link, error) {
	a.mu.Lock()
	a.Connects++
	a.mu.Unlock()

	d := a.find(addr)
	if d == nil {
		return nil, errors.New("radiotest: unknown device " + addr)
	}
	if d.BlockConnect {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}

	l := &Link{dev: d, connected: true}
	a.mu.Lock()
	a.Links = append(a.Links, l)
	a.mu.Unlock()
	return l, nil
}

// LastLink is the most recently opened link, or nil.
func (a *Adapter) LastLink() *Link {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Links) == 0 {
		return nil
	}
	return a.Links[len(a.Links)-1]
}

// ---- link ----

// Link records traffic for assertions.
type Link struct {
	mu  sync.Mutex
	dev *Device

	connected bool
	notify    func([]byte)

	Subscribes   int
	Unsubscribes int
	Written      [][]byte
}

func (l *Link) Subscribe(fn func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return radio.ErrLinkClosed
	}
	l.notify = fn
	l.Subscribes++
	return nil
}

func (l *Link) Unsubscribe() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = nil
	l.Unsubscribes++
	return nil
}

func (l *Link) Write(frame []byte) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return radio.ErrLinkClosed
	}
	l.Written = append(l.Written, append([]byte(nil), frame...))
	fn := l.notify
	d := l.dev
	l.mu.Unlock()

	if d.WriteErr != nil {
		return d.WriteErr
	}
	if d.Respond == nil || fn == nil {
		return nil
	}

	// notifications arrive on another goroutine, like the D-Bus signal loop
	notes := d.Respond(frame)
	go func() {
		for _, n := range notes {
			fn(n)
		}
	}()
	return nil
}

func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	return nil
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Drop simulates the peer going away.
func (l *Link) Drop() { _ = l.Disconnect() }

// Counts returns subscribe/unsubscribe totals under the lock.
func (l *Link) Counts() (subs, unsubs int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Subscribes, l.Unsubscribes
}

// Frames returns a copy of the written frames.
func (l *Link) Frames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.Written...)
}
