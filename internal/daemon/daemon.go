// internal/daemon/daemon.go
package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rx178nwj/plant-dashboard/internal/cmdqueue"
	cfg "github.com/rx178nwj/plant-dashboard/internal/config"
	"github.com/rx178nwj/plant-dashboard/internal/health"
	"github.com/rx178nwj/plant-dashboard/internal/metrics"
	"github.com/rx178nwj/plant-dashboard/internal/poller"
	"github.com/rx178nwj/plant-dashboard/internal/radio"
	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/retry"
	"github.com/rx178nwj/plant-dashboard/internal/session"
	"github.com/rx178nwj/plant-dashboard/internal/status"
	"github.com/rx178nwj/plant-dashboard/internal/writer"
)

// Registry is the device source. Implemented by registry.SQLite.
type Registry interface {
	Load(ctx context.Context) ([]registry.Device, error)
	Get(ctx context.Context, id string) (registry.Device, error)
}

// seenMarker is the optional write-back side of the registry.
type seenMarker interface {
	MarkSeen(ctx context.Context, id, connStatus string, battery *int, at time.Time) error
}

// Options are the daemon's collaborators. Config must be validated and normalized.
type Options struct {
	Config   cfg.Config
	Radio    radio.Adapter
	Registry Registry

	// Restarter restarts the radio stack; nil runs Config.Radio.RestartCommand.
	Restarter health.Restarter

	Sink    writer.Writer        // nil drops records
	Mirror  *writer.StatusMirror // optional
	Metrics *metrics.Metrics     // optional
	Wake    <-chan struct{}      // queue wake-ups; optional
	Log     logrus.FieldLogger
}

// Daemon is the single goroutine that owns the radio.
type Daemon struct {
	cfg cfg.Config
	reg Registry
	log logrus.FieldLogger

	pool   *session.Pool
	poll   *poller.Poller
	queue  *cmdqueue.Processor
	health *health.Tracker // nil when disabled

	sink    writer.Writer
	mirror  *writer.StatusMirror
	metrics *metrics.Metrics
	wake    <-chan struct{}

	// a dead sink fails every poll; log the first failure, then once a minute
	sinkWarn rate.Sometimes

	statuses map[string]*status.Tracker
	names    map[string]string

	now func() time.Time
}

// New wires the daemon.
func New(o Options) (*Daemon, error) {
	if o.Radio == nil {
		return nil, errors.New("daemon: radio adapter required")
	}
	if o.Registry == nil {
		return nil, errors.New("daemon: registry required")
	}
	log := o.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := o.Config

	resolve := func(ctx context.Context, id string) (string, error) {
		d, err := o.Registry.Get(ctx, id)
		if err != nil {
			return "", err
		}
		return d.MAC, nil
	}
	pool, err := session.NewPool(o.Radio, session.Config{
		ScanTimeout:       c.Session.ScanTimeout,
		ConnectTimeout:    c.Session.ConnectTimeout,
		ResponseTimeout:   c.Session.ResponseTimeout,
		ReconnectAttempts: c.Session.ReconnectAttempts,
		BackoffBase:       c.Session.BackoffBase,
	}, resolve, log)
	if err != nil {
		return nil, err
	}

	p, err := poller.Build(c, pool, o.Radio, log)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      c,
		reg:      o.Registry,
		log:      log,
		pool:     pool,
		poll:     p,
		sink:     o.Sink,
		mirror:   o.Mirror,
		metrics:  o.Metrics,
		wake:     o.Wake,
		statuses: make(map[string]*status.Tracker),
		names:    make(map[string]string),
		sinkWarn: rate.Sometimes{First: 1, Interval: time.Minute},
		now:      time.Now,
	}

	q, err := cmdqueue.NewProcessor(c.Queue.Path, func(ctx context.Context, id string) (cmdqueue.Commander, error) {
		s, err := pool.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, log)
	if err != nil {
		return nil, err
	}
	q.OnResult = d.observeCommand
	d.queue = q

	if !c.Health.Disabled {
		r := o.Restarter
		if r == nil {
			r = radio.NewCommandRestarter(c.Radio.RestartCommand)
		}
		h, err := health.New(health.Config{
			Capacity:  c.Health.Window,
			Threshold: c.Health.Threshold,
			Cooldown:  c.Health.Cooldown,
		}, r)
		if err != nil {
			return nil, err
		}
		d.health = h
	}

	return d, nil
}

// Pool exposes the session map, for the CLI's one-shot commands.
func (d *Daemon) Pool() *session.Pool { return d.pool }

// Run loops until ctx is cancelled. Cycle errors and panics are logged and
// followed by the error backoff; they never end the loop.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.WithFields(logrus.Fields{
		"poll_interval": d.cfg.Daemon.PollInterval,
		"queue":         d.cfg.Queue.Path,
	}).Info("daemon started")

	defer func() {
		if err := d.pool.DisconnectAll(); err != nil {
			d.log.WithError(err).Warn("disconnect on shutdown")
		}
		d.log.Info("daemon stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := d.safeCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			d.log.WithError(err).Error("cycle failed")
			if d.metrics != nil {
				d.metrics.CycleErrors.Inc()
			}
			if retry.Sleep(ctx, d.cfg.Daemon.ErrorBackoff) != nil {
				return nil
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.LastCycle.Set(float64(d.now().Unix()))
		}

		d.idle(ctx, d.cfg.Daemon.PollInterval)
	}
}

func (d *Daemon) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("stack", string(debug.Stack())).Error("panic in cycle")
			err = fmt.Errorf("daemon: panic: %v", r)
		}
	}()
	return d.Cycle(ctx)
}

// Cycle runs one pass: queue, registry, sweep, health.
func (d *Daemon) Cycle(ctx context.Context) error {
	d.drainQueue(ctx)

	devices, err := d.reg.Load(ctx)
	if err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.Devices.Set(float64(len(devices)))
	}
	if len(devices) == 0 {
		d.log.Warn("no devices registered")
		return nil
	}

	d.log.WithField("devices", len(devices)).Info("sweep started")
	n := d.poll.Sweep(ctx, devices, d.cfg.Daemon.InterDeviceDelay, func(res poller.PollResult) {
		d.handle(ctx, res)
	})
	d.log.WithField("polled", n).Info("sweep finished")

	if ctx.Err() != nil {
		return nil
	}
	d.checkHealth(ctx)
	d.tickStatus()
	return nil
}

// handle records one result everywhere it needs to go.
func (d *Daemon) handle(ctx context.Context, res poller.PollResult) {
	log := d.log.WithField("device", res.DeviceID)
	if res.Err != nil {
		log.WithError(res.Err).Warn("poll failed")
	} else {
		log.WithField("payload_version", res.PayloadVersion).Debug("poll ok")
	}

	if d.health != nil {
		d.health.Record(res.OK())
	}
	if d.metrics != nil {
		d.metrics.ObservePoll(string(res.Mode), res.OK(), res.Duration)
		if d.health != nil {
			d.metrics.LinkRate.Set(d.health.Rate())
		}
	}

	if d.sink != nil {
		if err := d.sink.Write(ctx, writer.NewRecord(res)); err != nil {
			d.sinkWarn.Do(func() { log.WithError(err).Error("sink write failed") })
			log.WithError(err).Debug("sink write failed")
		}
	}

	d.names[res.DeviceID] = res.DeviceName
	st := d.tracker(res.DeviceID)
	changed := st.Observe(res.Err, res.PayloadVersion, res.At)
	if d.health != nil && st.SetLinkRate(d.health.Rate()) {
		changed = true
	}
	if changed {
		d.mirrorWrite(res.DeviceID)
	}

	if d.cfg.Registry.MarkSeen {
		d.markSeen(ctx, res)
	}
}

func (d *Daemon) markSeen(ctx context.Context, res poller.PollResult) {
	m, ok := d.reg.(seenMarker)
	if !ok {
		return
	}
	state := registry.StatusConnected
	var battery *int
	if res.Err != nil {
		state = registry.StatusError
	} else if res.Broadcast != nil {
		b := res.Broadcast.Battery
		battery = &b
	}
	if err := m.MarkSeen(ctx, res.DeviceID, state, battery, res.At); err != nil {
		d.log.WithError(err).WithField("device", res.DeviceID).Warn("registry write-back failed")
	}
}

// checkHealth restarts the radio stack when the window says so, then lets it settle.
func (d *Daemon) checkHealth(ctx context.Context) {
	if d.health == nil {
		return
	}
	now := d.now()
	if !d.health.ShouldRestart(now) {
		return
	}

	d.log.WithFields(logrus.Fields{
		"rate":   d.health.Rate(),
		"window": d.health.Len(),
	}).Warn("link health below threshold, restarting radio stack")

	for id, st := range d.statuses {
		if st.SetRadioRestart() {
			d.mirrorWrite(id)
		}
	}

	err := d.health.Restart(ctx, now)
	if d.metrics != nil {
		d.metrics.ObserveRestart(err)
	}
	if err != nil {
		d.log.WithError(err).Error("radio restart failed")
		return
	}

	d.log.WithField("wait", d.cfg.Daemon.StabilizationWait).Info("radio restarted, waiting for it to settle")
	_ = retry.Sleep(ctx, d.cfg.Daemon.StabilizationWait)
	d.pool.MarkAllDisconnected()
}

func (d *Daemon) tickStatus() {
	now := d.now()
	for id, st := range d.statuses {
		if st.Tick(now, d.cfg.Daemon.StaleAfter) {
			d.mirrorWrite(id)
		}
	}
}

func (d *Daemon) tracker(id string) *status.Tracker {
	st, ok := d.statuses[id]
	if !ok {
		st = status.NewTracker()
		d.statuses[id] = st
	}
	return st
}

func (d *Daemon) mirrorWrite(id string) {
	if d.mirror == nil {
		return
	}
	if err := d.mirror.Write(id, d.names[id], d.statuses[id].Snapshot()); err != nil {
		d.log.WithError(err).WithField("device", id).Warn("status mirror write failed")
	}
}

// drainQueue runs one queue batch. Queue errors are logged only.
func (d *Daemon) drainQueue(ctx context.Context) {
	st, err := d.queue.Process(ctx)
	if err != nil && ctx.Err() == nil {
		d.log.WithError(err).Error("command queue")
	}
	if st.Claimed {
		d.log.WithFields(logrus.Fields{
			"lines":      st.Lines,
			"dispatched": st.Dispatched,
			"failed":     st.Failed,
			"skipped":    st.Skipped,
		}).Info("command queue drained")
	}
}

func (d *Daemon) observeCommand(c cmdqueue.Command, err error) {
	if d.metrics == nil {
		return
	}
	switch {
	case err == nil:
		d.metrics.ObserveCommand(c.Command, "dispatched")
	case errors.Is(err, cmdqueue.ErrMalformedCommand), errors.Is(err, cmdqueue.ErrUnknownCommand):
		d.metrics.ObserveCommand(c.Command, "skipped")
	default:
		d.metrics.ObserveCommand(c.Command, "failed")
	}
}

// idle sleeps until the next cycle. Queue wake-ups drain the queue without
// starting a sweep.
func (d *Daemon) idle(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			return
		case <-d.wake:
			d.drainQueue(ctx)
		}
	}
}
