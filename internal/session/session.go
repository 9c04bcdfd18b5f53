// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rx178nwj/plant-dashboard/internal/protocol"
	"github.com/rx178nwj/plant-dashboard/internal/radio"
	"github.com/rx178nwj/plant-dashboard/internal/retry"
)

// Config holds per-session timing. Zero values take the defaults below.
type Config struct {
	ScanTimeout       time.Duration
	ConnectTimeout    time.Duration
	ResponseTimeout   time.Duration
	ReconnectAttempts int
	BackoffBase       float64

	// Backoff overrides the base^attempt schedule. Tests only.
	Backoff func(attempt int) time.Duration
}

const (
	DefaultScanTimeout       = 5 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultResponseTimeout   = 10 * time.Second
	DefaultReconnectAttempts = 5
	DefaultBackoffBase       = 2.0
)

func (c Config) withDefaults() Config {
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	return c
}

// Session is the connection to one active-protocol device.
// It is owned by a single goroutine and is not safe for concurrent use.
type Session struct {
	deviceID string
	mac      string

	cfg   Config
	radio radio.Adapter
	log   logrus.FieldLogger

	link radio.Link
	seq  uint8
}

// New creates a disconnected session.
func New(deviceID, mac string, a radio.Adapter, cfg Config, log logrus.FieldLogger) (*Session, error) {
	if deviceID == "" {
		return nil, errors.New("session: device id required")
	}
	if mac == "" {
		return nil, errors.New("session: mac address required")
	}
	if a == nil {
		return nil, errors.New("session: radio adapter required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		deviceID: deviceID,
		mac:      radio.NormalizeMAC(mac),
		cfg:      cfg.withDefaults(),
		radio:    a,
		log:      log.WithFields(logrus.Fields{"device": deviceID, "mac": radio.NormalizeMAC(mac)}),
	}, nil
}

func (s *Session) DeviceID() string { return s.deviceID }
func (s *Session) MAC() string      { return s.mac }

// Sequence is the last sequence number sent.
func (s *Session) Sequence() uint8 { return s.seq }

// Connected reports the live link state.
func (s *Session) Connected() bool {
	return s.link != nil && s.link.Connected()
}

// ---- lifecycle ----

// Connect scans for the device and opens a link.
func (s *Session) Connect(ctx context.Context) error {
	if s.Connected() {
		return nil
	}
	s.dropLink()

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	_, err := radio.FindDevice(scanCtx, s.radio, s.mac)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", ErrScanTimeout, s.mac, s.cfg.ScanTimeout)
		}
		return fmt.Errorf("%w: scan: %v", ErrNotConnected, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	link, err := s.radio.Connect(connCtx, s.mac)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", ErrConnectTimeout, s.mac, s.cfg.ConnectTimeout)
		}
		return fmt.Errorf("%w: connect: %v", ErrNotConnected, err)
	}

	s.link = link
	s.log.Info("connected")
	return nil
}

// EnsureConnected is a no-op on a live link; otherwise it retries Connect
// with base^attempt second backoff. The first attempt is immediate: there is
// no base^0 (1s) sleep before it.
func (s *Session) EnsureConnected(ctx context.Context) error {
	if s.Connected() {
		return nil
	}

	backoff := s.cfg.Backoff
	if backoff == nil {
		backoff = retry.Exponential(s.cfg.BackoffBase)
	}

	return retry.Run(ctx, retry.Policy{
		MaxAttempts: s.cfg.ReconnectAttempts,
		Backoff:     backoff,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) && ctx.Err() == nil
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			s.log.WithError(err).WithField("attempt", attempt).Warnf("connect failed, retrying in %s", wait)
		},
	}, s.Connect)
}

// Disconnect closes the link. Safe to call repeatedly.
func (s *Session) Disconnect() error {
	if s.link == nil {
		return nil
	}
	err := s.link.Disconnect()
	s.link = nil
	if err != nil {
		return fmt.Errorf("session: disconnect %s: %w", s.mac, err)
	}
	s.log.Info("disconnected")
	return nil
}

// MarkDisconnected forgets the link without a radio call.
// Used after a radio stack restart, when every link is already gone.
func (s *Session) MarkDisconnected() {
	s.link = nil
}

func (s *Session) dropLink() {
	if s.link != nil {
		_ = s.link.Disconnect()
		s.link = nil
	}
}

// ---- request/response ----

// Exchange sends one command and waits for its response notification.
// The subscription is released on every return path.
func (s *Session) Exchange(ctx context.Context, commandID uint8, payload []byte) (protocol.ResponseFrame, error) {
	if !s.Connected() {
		return protocol.ResponseFrame{}, ErrNotConnected
	}
	if err := protocol.CheckCommandPayload(payload); err != nil {
		return protocol.ResponseFrame{}, err
	}
	link := s.link

	notes := make(chan []byte, 1)
	if err := link.Subscribe(func(b []byte) {
		select {
		case notes <- b:
		default:
		}
	}); err != nil {
		s.dropLink()
		return protocol.ResponseFrame{}, fmt.Errorf("%w: subscribe: %v", ErrNotConnected, err)
	}
	defer func() {
		if err := link.Unsubscribe(); err != nil {
			s.log.WithError(err).Debug("unsubscribe failed")
		}
	}()

	s.seq = protocol.NextSequence(s.seq)
	seq := s.seq

	frame := protocol.EncodeCommand(commandID, seq, payload)
	s.log.WithFields(logrus.Fields{
		"cmd": protocol.CommandName(commandID),
		"seq": seq,
	}).Debugf("write %x", frame)

	if err := link.Write(frame); err != nil {
		s.dropLink()
		return protocol.ResponseFrame{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()

	var raw []byte
	select {
	case raw = <-notes:
	case <-timer.C:
		return protocol.ResponseFrame{}, fmt.Errorf("%w: %s after %s", ErrNotificationTimeout, protocol.CommandName(commandID), s.cfg.ResponseTimeout)
	case <-ctx.Done():
		return protocol.ResponseFrame{}, ctx.Err()
	}

	resp, err := protocol.DecodeResponse(raw)
	if err != nil {
		return protocol.ResponseFrame{}, err
	}

	if resp.Sequence != seq {
		s.log.WithFields(logrus.Fields{
			"expected": seq,
			"got":      resp.Sequence,
		}).Warn(protocol.ErrSequenceMismatch.Error())
	}

	if !resp.OK() {
		return resp, &StatusError{CommandID: commandID, Status: resp.Status}
	}
	return resp, nil
}

// ---- high-level operations ----

// ReadSensor requests one reading. versionHint is the registry's payload version.
func (s *Session) ReadSensor(ctx context.Context, versionHint int) (protocol.Reading, error) {
	resp, err := s.Exchange(ctx, protocol.CmdGetSensorData, nil)
	if err != nil {
		return protocol.Reading{}, err
	}
	r, err := protocol.DecodeSensorPayload(resp.Payload, int(resp.PayloadLength), versionHint)
	if err != nil {
		return protocol.Reading{}, fmt.Errorf("session: sensor payload from %s: %w", s.deviceID, err)
	}
	return r, nil
}

// SetWateringThresholds writes the dry/wet millivolt thresholds.
func (s *Session) SetWateringThresholds(ctx context.Context, t protocol.WateringThresholds) error {
	_, err := s.Exchange(ctx, protocol.CmdSetWateringThresholds, t.Encode())
	return err
}

// ControlLED drives the indicator light.
func (s *Session) ControlLED(ctx context.Context, l protocol.LED) error {
	_, err := s.Exchange(ctx, protocol.CmdControlLED, l.Encode())
	return err
}

// DeviceInfo reads the identity block.
func (s *Session) DeviceInfo(ctx context.Context) (protocol.DeviceInfo, error) {
	resp, err := s.Exchange(ctx, protocol.CmdGetDeviceInfo, nil)
	if err != nil {
		return protocol.DeviceInfo{}, err
	}
	return protocol.DecodeDeviceInfo(resp.Payload)
}

func statusText(cmd, status uint8) string {
	return fmt.Sprintf("%s status=0x%02x", protocol.CommandName(cmd), status)
}
