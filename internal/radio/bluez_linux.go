//go:build linux

// internal/radio/bluez_linux.go
package radio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"tinygo.org/x/bluetooth"
)

// BlueZ is the Adapter backed by the host BlueZ daemon over D-Bus.
type BlueZ struct {
	adapter *bluetooth.Adapter

	service  bluetooth.UUID
	command  bluetooth.UUID
	response bluetooth.UUID

	// BlueZ allows one discovery session per adapter.
	scanMu sync.Mutex
}

// BlueZConfig names the GATT identifiers used by Connect.
type BlueZConfig struct {
	ServiceUUID            string
	CommandCharacteristic  string
	ResponseCharacteristic string
}

// NewBlueZ enables the default adapter and parses the GATT identifiers.
func NewBlueZ(cfg BlueZConfig) (*BlueZ, error) {
	svc, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("radio: service uuid: %w", err)
	}
	cmd, err := bluetooth.ParseUUID(cfg.CommandCharacteristic)
	if err != nil {
		return nil, fmt.Errorf("radio: command characteristic uuid: %w", err)
	}
	resp, err := bluetooth.ParseUUID(cfg.ResponseCharacteristic)
	if err != nil {
		return nil, fmt.Errorf("radio: response characteristic uuid: %w", err)
	}

	a := bluetooth.DefaultAdapter
	if err := a.Enable(); err != nil {
		return nil, fmt.Errorf("radio: enable adapter: %w", err)
	}

	return &BlueZ{
		adapter:  a,
		service:  svc,
		command:  cmd,
		response: resp,
	}, nil
}

// Scan runs a discovery session until fn declines more results or ctx ends.
func (b *BlueZ) Scan(ctx context.Context, fn func(Advertisement) bool) error {
	b.scanMu.Lock()
	defer b.scanMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var stopped atomic.Bool
	stop := func() {
		if stopped.CompareAndSwap(false, true) {
			_ = b.adapter.StopScan()
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- b.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			if stopped.Load() {
				return
			}
			if !fn(toAdvertisement(r)) {
				stop()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil && !stopped.Load() {
			return fmt.Errorf("radio: scan: %w", err)
		}
		return nil
	case <-ctx.Done():
		stop()
		<-done
		return ctx.Err()
	}
}

func toAdvertisement(r bluetooth.ScanResult) Advertisement {
	adv := Advertisement{
		Address: r.Address.String(),
		Name:    r.LocalName(),
		RSSI:    r.RSSI,
	}
	elems := r.ServiceData()
	if len(elems) > 0 {
		adv.ServiceData = make(map[string][]byte, len(elems))
		for _, e := range elems {
			key := strings.ToLower(e.UUID.String())
			adv.ServiceData[key] = append([]byte(nil), e.Data...)
			adv.ServiceUUIDs = append(adv.ServiceUUIDs, key)
		}
	}
	return adv
}

// Connect opens a GATT connection and resolves both characteristics.
// The BlueZ call itself is not cancellable; ctx bounds how long we wait for it.
func (b *BlueZ) Connect(ctx context.Context, addr string) (Link, error) {
	mac, err := bluetooth.ParseMAC(NormalizeMAC(addr))
	if err != nil {
		return nil, fmt.Errorf("radio: address %q: %w", addr, err)
	}

	type result struct {
		link *bluezLink
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		dev, err := b.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, bluetooth.ConnectionParams{})
		if err != nil {
			ch <- result{err: fmt.Errorf("radio: connect %s: %w", addr, err)}
			return
		}
		l, err := b.resolve(dev)
		if err != nil {
			_ = dev.Disconnect()
			ch <- result{err: err}
			return
		}
		ch <- result{link: l}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.link, nil
	case <-ctx.Done():
		// late success must not leak a connection
		go func() {
			if r := <-ch; r.link != nil {
				_ = r.link.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

func (b *BlueZ) resolve(dev bluetooth.Device) (*bluezLink, error) {
	svcs, err := dev.DiscoverServices([]bluetooth.UUID{b.service})
	if err != nil {
		return nil, fmt.Errorf("radio: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, errors.New("radio: command service not found")
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{b.command, b.response})
	if err != nil {
		return nil, fmt.Errorf("radio: discover characteristics: %w", err)
	}

	l := &bluezLink{dev: dev}
	var haveCmd, haveResp bool
	for i := range chars {
		switch chars[i].UUID() {
		case b.command:
			l.cmd, haveCmd = chars[i], true
		case b.response:
			l.resp, haveResp = chars[i], true
		}
	}
	if !haveCmd || !haveResp {
		return nil, errors.New("radio: command/response characteristics not found")
	}

	l.connected.Store(true)
	return l, nil
}

// ---- link ----

type bluezLink struct {
	dev  bluetooth.Device
	cmd  bluetooth.DeviceCharacteristic
	resp bluetooth.DeviceCharacteristic

	connected atomic.Bool
}

func (l *bluezLink) Subscribe(fn func([]byte)) error {
	if !l.connected.Load() {
		return ErrLinkClosed
	}
	return l.resp.EnableNotifications(func(buf []byte) {
		fn(append([]byte(nil), buf...))
	})
}

func (l *bluezLink) Unsubscribe() error {
	if !l.connected.Load() {
		return nil
	}
	return l.resp.EnableNotifications(nil)
}

func (l *bluezLink) Write(frame []byte) error {
	if !l.connected.Load() {
		return ErrLinkClosed
	}
	_, err := l.cmd.WriteWithoutResponse(frame)
	return err
}

func (l *bluezLink) Disconnect() error {
	if !l.connected.CompareAndSwap(true, false) {
		return nil
	}
	return l.dev.Disconnect()
}

func (l *bluezLink) Connected() bool { return l.connected.Load() }
