// internal/poller/runner.go
package poller

import (
	"context"
	"time"

	"github.com/rx178nwj/plant-dashboard/internal/registry"
	"github.com/rx178nwj/plant-dashboard/internal/retry"
)

// Sweep polls devices one after another, handing each result to emit.
// The radio is shared, so there is no overlap; delay separates consecutive devices.
// It stops early only when ctx ends and returns the number of devices polled.
func (p *Poller) Sweep(ctx context.Context, devices []registry.Device, delay time.Duration, emit func(PollResult)) int {
	n := 0
	for i, d := range devices {
		if ctx.Err() != nil {
			return n
		}
		if i > 0 && delay > 0 {
			if err := retry.Sleep(ctx, delay); err != nil {
				return n
			}
		}
		emit(p.PollOnce(ctx, d))
		n++
	}
	return n
}
