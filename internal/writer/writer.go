// internal/writer/writer.go
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// fanout delivers every record to each destination in order.
// One failing destination never stops the others.
type fanout struct {
	dests []named
}

type named struct {
	name string
	w    Writer
}

// Fanout combines destinations. Names only appear in error text.
func Fanout() *FanoutBuilder { return &FanoutBuilder{} }

// FanoutBuilder collects destinations for Fanout.
type FanoutBuilder struct {
	dests []named
}

// Add appends a destination.
func (b *FanoutBuilder) Add(name string, w Writer) *FanoutBuilder {
	if w != nil {
		b.dests = append(b.dests, named{name: name, w: w})
	}
	return b
}

// Len is the number of destinations added so far.
func (b *FanoutBuilder) Len() int { return len(b.dests) }

// Build returns the combined writer.
func (b *FanoutBuilder) Build() Writer {
	return &fanout{dests: append([]named(nil), b.dests...)}
}

func (f *fanout) Write(ctx context.Context, r Record) error {
	var errs []string
	for _, d := range f.dests {
		if err := d.w.Write(ctx, r); err != nil {
			errs = append(errs, fmt.Sprintf("writer: %s device=%s err=%v", d.name, r.DeviceID, err))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

func (f *fanout) Close() error {
	var errs []string
	for _, d := range f.dests {
		if err := d.w.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("writer: close %s: %v", d.name, err))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}
