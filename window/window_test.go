// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package window_test

import (
	"testing"

	"github.com/bcl/sgp30-node/sgp30"
	"github.com/bcl/sgp30-node/window"
)

// Property 3 — window bound: size stays in [0, Capacity] under any sequence
// of enqueues. oldestIndex is unexported and is not checked here.
func TestBound(t *testing.T) {
	var w window.Window
	for i := 0; i < 100; i++ {
		w.Enqueue(sgp30.Measurement{ECO2: uint16(i), TVOC: uint16(i)})
		if w.Size() < 0 || w.Size() > window.Capacity {
			t.Fatalf("size out of range: %d", w.Size())
		}
	}
}

// Property 4 — FIFO order under a non-overwriting regime (k <= Capacity).
func TestFIFOBeforeOverwrite(t *testing.T) {
	var w window.Window
	for i := 0; i < window.Capacity; i++ {
		w.Enqueue(sgp30.Measurement{ECO2: uint16(i)})
	}
	for i := 0; i < window.Capacity; i++ {
		m, err := w.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if m.ECO2 != uint16(i) {
			t.Errorf("dequeue order broken: got %d want %d", m.ECO2, i)
		}
	}
	if _, err := w.Dequeue(); err != window.ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

// Property 5 — sliding window: after Capacity+k enqueues the window holds
// exactly the last Capacity samples.
func TestSlidingWindow(t *testing.T) {
	var w window.Window
	const k = 5
	total := window.Capacity + k
	for i := 0; i < total; i++ {
		w.Enqueue(sgp30.Measurement{ECO2: uint16(i)})
	}
	if w.Size() != window.Capacity {
		t.Fatalf("size = %d, want %d", w.Size(), window.Capacity)
	}
	for i := k; i < total; i++ {
		m, err := w.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if m.ECO2 != uint16(i) {
			t.Errorf("sliding window broken: got %d want %d", m.ECO2, i)
		}
	}
}

// Property 6 — mean correctness and its boundary cases.
func TestMean(t *testing.T) {
	var w window.Window
	if _, err := w.Mean(); err != window.ErrEmpty {
		t.Fatalf("expected ErrEmpty on empty window, got %v", err)
	}

	w.Enqueue(sgp30.Measurement{ECO2: 500, TVOC: 10})
	m, err := w.Mean()
	if err != nil {
		t.Fatalf("Mean: %v", err)
	}
	if m != (sgp30.Measurement{ECO2: 500, TVOC: 10}) {
		t.Errorf("got %+v, want {500 10}", m)
	}

	w.Enqueue(sgp30.Measurement{ECO2: 400, TVOC: 20})
	w.Enqueue(sgp30.Measurement{ECO2: 600, TVOC: 30})
	m, err = w.Mean()
	if err != nil {
		t.Fatalf("Mean: %v", err)
	}
	if m != (sgp30.Measurement{ECO2: 500, TVOC: 20}) {
		t.Errorf("got %+v, want {500 20}", m)
	}
}

// Property 6, generalized — mean is the floor of the arithmetic average for
// any population size in [1, Capacity].
func TestMeanGeneral(t *testing.T) {
	for n := 1; n <= window.Capacity; n++ {
		var w window.Window
		var eco2Sum, tvocSum int
		for i := 0; i < n; i++ {
			eco2 := uint16(100 + i*7)
			tvoc := uint16(3 + i*11)
			w.Enqueue(sgp30.Measurement{ECO2: eco2, TVOC: tvoc})
			eco2Sum += int(eco2)
			tvocSum += int(tvoc)
		}
		m, err := w.Mean()
		if err != nil {
			t.Fatalf("n=%d: Mean: %v", n, err)
		}
		if int(m.ECO2) != eco2Sum/n {
			t.Errorf("n=%d: ECO2 mean = %d, want %d", n, m.ECO2, eco2Sum/n)
		}
		if int(m.TVOC) != tvocSum/n {
			t.Errorf("n=%d: TVOC mean = %d, want %d", n, m.TVOC, tvocSum/n)
		}
	}
}
