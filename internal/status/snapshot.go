// internal/status/snapshot.go
package status

import "time"

// Snapshot is exactly what the status writer is allowed to deliver.
type Snapshot struct {
	Health              uint16
	LastErrorCode       uint16
	SecondsInError      uint16
	PayloadVersion      uint16
	ConsecutiveFailures uint16
	LinkRate            uint16
}

// Tracker derives Snapshots from poll outcomes for one device.
// Owned by the daemon goroutine.
type Tracker struct {
	snap       Snapshot
	errorSince time.Time
	lastPoll   time.Time
}

// NewTracker starts in HealthUnknown.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe folds one poll outcome in and reports whether the snapshot changed.
func (t *Tracker) Observe(err error, payloadVersion int, at time.Time) bool {
	before := t.snap
	t.lastPoll = at

	if err == nil {
		t.snap.Health = HealthOK
		t.snap.LastErrorCode = 0
		t.snap.SecondsInError = 0
		t.snap.ConsecutiveFailures = 0
		t.snap.PayloadVersion = uint16(payloadVersion)
		t.errorSince = time.Time{}
		return t.snap != before
	}

	if t.snap.Health != HealthError || t.errorSince.IsZero() {
		t.errorSince = at
	}
	t.snap.Health = HealthError
	t.snap.LastErrorCode = CodeOf(err)
	t.snap.SecondsInError = saturate(at.Sub(t.errorSince).Seconds())
	if t.snap.ConsecutiveFailures < 65535 {
		t.snap.ConsecutiveFailures++
	}
	return t.snap != before
}

// Tick advances time-derived fields. staleAfter of 0 disables the stale check.
func (t *Tracker) Tick(now time.Time, staleAfter time.Duration) bool {
	before := t.snap

	if !t.errorSince.IsZero() {
		t.snap.SecondsInError = saturate(now.Sub(t.errorSince).Seconds())
	}
	if staleAfter > 0 && t.snap.Health == HealthOK && !t.lastPoll.IsZero() && now.Sub(t.lastPoll) > staleAfter {
		t.snap.Health = HealthStale
	}
	return t.snap != before
}

// SetRadioRestart flags the device while the radio stack restarts.
func (t *Tracker) SetRadioRestart() bool {
	if t.snap.Health == HealthRadioRestart {
		return false
	}
	t.snap.Health = HealthRadioRestart
	return true
}

// SetLinkRate stores the health window rate (0..1) as percent.
func (t *Tracker) SetLinkRate(rate float64) bool {
	v := saturate(rate * 100)
	if v == t.snap.LinkRate {
		return false
	}
	t.snap.LinkRate = v
	return true
}

func saturate(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 65535 {
		return 65535
	}
	return uint16(v)
}
