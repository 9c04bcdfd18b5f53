// internal/session/pool.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rx178nwj/plant-dashboard/internal/radio"
)

// Resolver maps a device id to its MAC address.
type Resolver func(ctx context.Context, deviceID string) (mac string, err error)

// Pool is the device id -> Session map for the process lifetime.
// Owned by the daemon goroutine; not safe for concurrent use.
type Pool struct {
	radio   radio.Adapter
	cfg     Config
	resolve Resolver
	log     logrus.FieldLogger

	sessions map[string]*Session
}

// NewPool creates an empty pool. resolve is used for devices seen the first time.
func NewPool(a radio.Adapter, cfg Config, resolve Resolver, log logrus.FieldLogger) (*Pool, error) {
	if a == nil {
		return nil, errors.New("session pool: radio adapter required")
	}
	if resolve == nil {
		return nil, errors.New("session pool: resolver required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{
		radio:    a,
		cfg:      cfg,
		resolve:  resolve,
		log:      log,
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns the live session for deviceID, creating it on first use.
// A MAC change in the registry replaces the old session.
func (p *Pool) Get(ctx context.Context, deviceID string) (*Session, error) {
	if s, ok := p.sessions[deviceID]; ok {
		return s, nil
	}
	mac, err := p.resolve(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("session pool: resolve %s: %w", deviceID, err)
	}
	return p.put(deviceID, mac)
}

// For returns the session for a device whose MAC is already known.
func (p *Pool) For(deviceID, mac string) (*Session, error) {
	if s, ok := p.sessions[deviceID]; ok {
		if s.MAC() == radio.NormalizeMAC(mac) {
			return s, nil
		}
		_ = s.Disconnect()
		delete(p.sessions, deviceID)
	}
	return p.put(deviceID, mac)
}

func (p *Pool) put(deviceID, mac string) (*Session, error) {
	s, err := New(deviceID, mac, p.radio, p.cfg, p.log)
	if err != nil {
		return nil, err
	}
	p.sessions[deviceID] = s
	return s, nil
}

// Len is the number of known sessions.
func (p *Pool) Len() int { return len(p.sessions) }

// IDs returns the device ids in sorted order.
func (p *Pool) IDs() []string {
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarkAllDisconnected forgets every link. Called after a radio restart.
func (p *Pool) MarkAllDisconnected() {
	for _, s := range p.sessions {
		s.MarkDisconnected()
	}
}

// DisconnectAll closes every link, returning the last error.
func (p *Pool) DisconnectAll() error {
	var last error
	for _, id := range p.IDs() {
		if err := p.sessions[id].Disconnect(); err != nil {
			p.log.WithError(err).WithField("device", id).Warn("disconnect failed")
			last = err
		}
	}
	return last
}
