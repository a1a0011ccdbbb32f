// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package window

import (
	"github.com/pkg/errors"

	"github.com/bcl/sgp30-node/sgp30"
)

// Capacity is the fixed number of samples the window holds: at the 1Hz
// heartbeat rate this gives a 12 second moving average.
const Capacity = 12

// ErrEmpty is returned by Dequeue and Mean when the window holds no
// samples.
var ErrEmpty = errors.New("window: empty")

// Window is a fixed-capacity circular buffer of sgp30.Measurement. The
// zero value is an empty, ready-to-use window. It is not safe for
// concurrent use - it is owned exclusively by the sensor controller.
type Window struct {
	data        [Capacity]sgp30.Measurement
	size        int
	oldestIndex int
}

// Enqueue appends m. If the window is full it overwrites the oldest
// sample and slides forward instead of growing.
func (w *Window) Enqueue(m sgp30.Measurement) {
	if w.size < Capacity {
		w.data[(w.oldestIndex+w.size)%Capacity] = m
		w.size++
		return
	}
	w.data[w.oldestIndex] = m
	w.oldestIndex = (w.oldestIndex + 1) % Capacity
}

// Dequeue removes and returns the oldest resident sample.
func (w *Window) Dequeue() (sgp30.Measurement, error) {
	if w.size == 0 {
		return sgp30.Measurement{}, ErrEmpty
	}
	m := w.data[w.oldestIndex]
	w.oldestIndex = (w.oldestIndex + 1) % Capacity
	w.size--
	return m, nil
}

// Size returns the number of resident samples, 0..Capacity.
func (w *Window) Size() int {
	return w.size
}

// Mean returns the arithmetic mean of the resident samples, truncated
// toward zero. It returns ErrEmpty if the window holds no samples - the
// caller must not request a mean before enqueuing at least one sample.
func (w *Window) Mean() (sgp30.Measurement, error) {
	if w.size == 0 {
		return sgp30.Measurement{}, ErrEmpty
	}
	var eco2Sum, tvocSum uint32
	for i := 0; i < w.size; i++ {
		m := w.data[(w.oldestIndex+i)%Capacity]
		eco2Sum += uint32(m.ECO2)
		tvocSum += uint32(m.TVOC)
	}
	n := uint32(w.size)
	return sgp30.Measurement{
		ECO2: uint16(eco2Sum / n),
		TVOC: uint16(tvocSum / n),
	}, nil
}
