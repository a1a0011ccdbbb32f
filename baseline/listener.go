// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package baseline

import (
	"context"

	"github.com/bcl/sgp30-node/events"
)

// Clock is the narrow "now" capability the Listener uses to timestamp a
// baseline at the moment it is persisted, not at the moment it was read
// from the sensor.
type Clock interface {
	Now() int64
}

// Logger is the narrow logging capability the Listener uses to report a
// failed commit; the next NewBaseline retries, so a failure here is
// logged, not fatal.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// Listener is the store adapter's event-bus edge: it subscribes to a
// controller's outbound events and persists every events.NewBaseline it
// observes, stamping it with the Listener's own Clock. Reading a baseline
// back happens once, directly, at controller startup.
type Listener struct {
	store Store
	clock Clock
	log   Logger
}

// NewListener returns a Listener that commits baselines to store.
func NewListener(store Store, clock Clock, log Logger) *Listener {
	return &Listener{store: store, clock: clock, log: log}
}

// Run drains in until it closes or ctx is canceled, persisting each
// events.NewBaseline observed. Other event kinds are ignored.
func (l *Listener) Run(ctx context.Context, in <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-in:
			if !ok {
				return
			}
			nb, ok := event.(events.NewBaseline)
			if !ok {
				continue
			}
			tm := TimedMeasurement{Measurement: nb.Measurement, Time: l.clock.Now()}
			if err := l.store.Set(tm); err != nil && l.log != nil {
				l.log.Errorf("persist baseline: %v (will retry on next NewBaseline)", err)
			}
		}
	}
}
