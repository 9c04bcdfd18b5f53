// internal/poller/poller.go
package poller

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rx178nwj/plant-dashboard/internal/advert"
	"github.com/rx178nwj/plant-dashboard/internal/protocol"
	"github.com/rx178nwj/plant-dashboard/internal/radio"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/retry"
	"github.com/rx178nwj/plant-dashboard/internal/session"
)

// Client is what the poller needs from an active-protocol session.
type Client interface {
	EnsureConnected(ctx context.Context) error
	ReadSensor(ctx context.Context, versionHint int) (protocol.Reading, error)
}

// ClientFactory returns the session for a device. Sessions live across polls;
// the factory decides whether a call creates or reuses one.
type ClientFactory func(d registry.Device) (Client, error)

// Config is the runtime config the poller needs.
type Config struct {
	// ReadAttempts bounds EnsureConnected+ReadSensor invocations per active poll.
	ReadAttempts int
	// ReadRetryDelay is the fixed sleep between read attempts.
	ReadRetryDelay time.Duration
	// BroadcastScanTimeout bounds one passive scan.
	BroadcastScanTimeout time.Duration
}

// Poller reads one device at a time.
type Poller struct {
	cfg     Config
	clients ClientFactory
	scanner radio.Adapter
	log     logrus.FieldLogger
	now     func() time.Time
}

// New creates a poller with immutable config.
func New(cfg Config, clients ClientFactory, scanner radio.Adapter, log logrus.FieldLogger) (*Poller, error) {
	if clients == nil {
		return nil, errors.New("poller: client factory required")
	}
	if scanner == nil {
		return nil, errors.New("poller: radio adapter required")
	}
	if cfg.ReadAttempts < 1 {
		return nil, errors.New("poller: read attempts must be >= 1")
	}
	if cfg.ReadRetryDelay < 0 {
		return nil, errors.New("poller: read retry delay must be >= 0")
	}
	if cfg.BroadcastScanTimeout <= 0 {
		return nil, errors.New("poller: broadcast scan timeout must be > 0")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Poller{cfg: cfg, clients: clients, scanner: scanner, log: log, now: time.Now}, nil
}

// PollOnce performs exactly one poll of d. It never panics on device data
// and always returns a result, failed or not.
func (p *Poller) PollOnce(ctx context.Context, d registry.Device) PollResult {
	start := p.now()
	res := PollResult{
		DeviceID:   d.ID,
		DeviceName: d.Name,
		Mode:       ModeOf(d),
		At:         start,
	}

	switch res.Mode {
	case ModePassive:
		b, err := p.pollBroadcast(ctx, d)
		if err != nil {
			res.Err = err
		} else {
			res.Broadcast = &b
		}

	default:
		res.PayloadVersion = d.PayloadVersion
		r, err := p.pollActive(ctx, d)
		if err != nil {
			res.Err = err
		} else {
			res.Reading = &r
			res.PayloadVersion = r.Layout()
		}
	}

	res.Duration = p.now().Sub(start)
	return res
}

func (p *Poller) pollActive(ctx context.Context, d registry.Device) (protocol.Reading, error) {
	c, err := p.clients(d)
	if err != nil {
		return protocol.Reading{}, err
	}
	log := p.log.WithField("device", d.ID)

	return retry.Do(ctx, retry.Policy{
		MaxAttempts: p.cfg.ReadAttempts,
		Delay:       p.cfg.ReadRetryDelay,
		Retryable:   retry.IsAny(session.TransientErrors...),
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.WithError(err).WithField("attempt", attempt).Warnf("read failed, retrying in %s", wait)
		},
	}, func(ctx context.Context) (protocol.Reading, error) {
		if err := c.EnsureConnected(ctx); err != nil {
			return protocol.Reading{}, err
		}
		return c.ReadSensor(ctx, d.PayloadVersion)
	})
}

// pollBroadcast scans until a decodable frame from d arrives or the scan times out.
// Undecodable frames are remembered so the timeout reports why.
func (p *Poller) pollBroadcast(ctx context.Context, d registry.Device) (advert.Reading, error) {
	want := radio.NormalizeMAC(d.MAC)
	log := p.log.WithField("device", d.ID)

	scanCtx, cancel := context.WithTimeout(ctx, p.cfg.BroadcastScanTimeout)
	defer cancel()

	var (
		got     advert.Reading
		ok      bool
		lastErr error
	)
	err := p.scanner.Scan(scanCtx, func(a radio.Advertisement) bool {
		if radio.NormalizeMAC(a.Address) != want {
			return true
		}
		r, err := advert.Decode(a.ServiceData)
		if err != nil {
			var um *advert.UnknownModelError
			if errors.As(err, &um) && !errors.Is(lastErr, advert.ErrUnknownModel) {
				log.WithField("raw", hex.EncodeToString(um.Raw)).Warn("unknown broadcast model")
			}
			lastErr = err
			return true
		}
		got, ok = r, true
		return false
	})

	if ok {
		return got, nil
	}
	if ctx.Err() != nil {
		return advert.Reading{}, ctx.Err()
	}
	if lastErr != nil {
		return advert.Reading{}, fmt.Errorf("poller: broadcast from %s: %w", d.MAC, lastErr)
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return advert.Reading{}, fmt.Errorf("poller: scan: %w", err)
	}
	return advert.Reading{}, fmt.Errorf("%w: no broadcast from %s in %s", session.ErrScanTimeout, d.MAC, p.cfg.BroadcastScanTimeout)
}
