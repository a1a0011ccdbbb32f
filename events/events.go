// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package events

import (
	"sync"
	"time"

	"github.com/bcl/sgp30-node/sgp30"
)

// DeliveryTimeout bounds how long Publish will wait on a single slow
// subscriber before moving on. A subscriber that misses its window misses
// that event; it is not retried and it does not block the producer.
const DeliveryTimeout = 50 * time.Millisecond

// NewMeasurement is emitted once per publish tick with the window's mean.
type NewMeasurement struct {
	Measurement sgp30.Measurement
}

// NewBaseline is emitted whenever the controller reads a fresh baseline
// from the sensor, for the baseline store adapter to persist.
type NewBaseline struct {
	Measurement sgp30.Measurement
}

// NewPublishInterval is delivered by the provisioning collaborator when the
// operator changes the publish cadence.
type NewPublishInterval struct {
	Seconds uint16
}

// Bus is an in-process, best-effort FIFO fan-out. Events carry value
// copies; there is no shared mutable state between producer and
// subscribers. A single producer is assumed - Publish itself is not
// required to be called concurrently from multiple goroutines.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan interface{}
	next    int
	timeout time.Duration
}

// NewBus returns a ready-to-use Bus with the default delivery timeout.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan interface{}), timeout: DeliveryTimeout}
}

// Subscribe registers a new subscriber with the given channel buffer depth
// and returns its delivery channel along with an unsubscribe function. The
// caller MUST call unsubscribe when done listening; it closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan interface{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan interface{}, buffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish delivers event to every current subscriber. Delivery to each
// subscriber is attempted for at most the bus's delivery timeout; a
// subscriber that cannot keep up simply misses the event.
func (b *Bus) Publish(event interface{}) {
	b.mu.Lock()
	chans := make([]chan interface{}, 0, len(b.subs))
	for _, c := range b.subs {
		chans = append(chans, c)
	}
	b.mu.Unlock()

	for _, c := range chans {
		select {
		case c <- event:
		case <-time.After(b.timeout):
		}
	}
}
