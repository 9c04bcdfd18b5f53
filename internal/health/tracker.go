// internal/health/tracker.go
package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults for the radio link window.
const (
	DefaultCapacity  = 10
	DefaultThreshold = 0.5
	DefaultCooldown  = 600 * time.Second
)

// Restarter restarts the radio stack. Implemented by radio.CommandRestarter.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RestarterFunc adapts a function to Restarter.
type RestarterFunc func(ctx context.Context) error

func (f RestarterFunc) Restart(ctx context.Context) error { return f(ctx) }

// Config is the window geometry and policy.
type Config struct {
	Capacity  int
	Threshold float64
	Cooldown  time.Duration
}

// Tracker is a fixed-size FIFO of poll outcomes.
// Not safe for concurrent use: the daemon goroutine owns it.
type Tracker struct {
	cfg       Config
	restarter Restarter

	window []bool
	head   int // index of the oldest entry once full
	full   bool

	lastRestart time.Time
	restarts    int
}

// New creates a tracker. Zero config fields take the defaults.
func New(cfg Config, r Restarter) (*Tracker, error) {
	if r == nil {
		return nil, errors.New("health: restarter required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Threshold > 1 {
		return nil, fmt.Errorf("health: threshold %.2f out of range (0,1]", cfg.Threshold)
	}
	if cfg.Cooldown < 0 {
		return nil, errors.New("health: cooldown must be >= 0")
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Tracker{
		cfg:       cfg,
		restarter: r,
		window:    make([]bool, 0, cfg.Capacity),
	}, nil
}

// Record appends one outcome, evicting the oldest once the window is full.
func (t *Tracker) Record(ok bool) {
	if !t.full {
		t.window = append(t.window, ok)
		if len(t.window) == t.cfg.Capacity {
			t.full = true
			t.head = 0
		}
		return
	}
	t.window[t.head] = ok
	t.head = (t.head + 1) % t.cfg.Capacity
}

// Len is the number of outcomes currently held.
func (t *Tracker) Len() int { return len(t.window) }

// Rate is the success mean of the window; 1 when empty.
func (t *Tracker) Rate() float64 {
	if len(t.window) == 0 {
		return 1
	}
	n := 0
	for _, ok := range t.window {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(t.window))
}

// Restarts is the number of successful restarts so far.
func (t *Tracker) Restarts() int { return t.restarts }

// LastRestart is the zero time until the first successful restart.
func (t *Tracker) LastRestart() time.Time { return t.lastRestart }

// ShouldRestart is true only with a full window, a mean below the threshold,
// and the cooldown elapsed since the last restart (or none yet).
func (t *Tracker) ShouldRestart(now time.Time) bool {
	if !t.full {
		return false
	}
	if t.Rate() >= t.cfg.Threshold {
		return false
	}
	if !t.lastRestart.IsZero() && now.Sub(t.lastRestart) < t.cfg.Cooldown {
		return false
	}
	return true
}

// Restart runs the restarter. On success the window is cleared and the time stamped;
// on failure nothing changes so the condition is re-evaluated next cycle.
func (t *Tracker) Restart(ctx context.Context, now time.Time) error {
	if err := t.restarter.Restart(ctx); err != nil {
		return fmt.Errorf("health: radio restart failed: %w", err)
	}
	t.window = t.window[:0]
	t.head = 0
	t.full = false
	t.lastRestart = now
	t.restarts++
	return nil
}

// MaybeRestart combines ShouldRestart and Restart. It reports whether a restart happened.
func (t *Tracker) MaybeRestart(ctx context.Context, now time.Time) (bool, error) {
	if !t.ShouldRestart(now) {
		return false, nil
	}
	if err := t.Restart(ctx, now); err != nil {
		return false, err
	}
	return true, nil
}
