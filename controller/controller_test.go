// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bcl/sgp30-node/controller"
	"github.com/bcl/sgp30-node/events"
	"github.com/bcl/sgp30-node/sgp30"
)

type fakeDevice struct {
	mu sync.Mutex

	measureFn func() (sgp30.Measurement, error)

	initCalls      int
	measureCalls   int
	getBaseline    sgp30.Measurement
	getBaselineErr error
	getBaselines   int
	setBaselines   []sgp30.Measurement
	initErr        error
}

func (d *fakeDevice) InitAirQuality() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initCalls++
	return d.initErr
}

func (d *fakeDevice) MeasureAirQuality() (sgp30.Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.measureCalls++
	if d.measureFn != nil {
		return d.measureFn()
	}
	return sgp30.Measurement{ECO2: 400, TVOC: 0}, nil
}

func (d *fakeDevice) GetBaseline() (sgp30.Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getBaselines++
	if d.getBaselineErr != nil {
		return sgp30.Measurement{}, d.getBaselineErr
	}
	return d.getBaseline, nil
}

func (d *fakeDevice) SetBaseline(m sgp30.Measurement) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setBaselines = append(d.setBaselines, m)
	return nil
}

func (d *fakeDevice) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initCalls + d.measureCalls
}

type fakeSink struct {
	mu     sync.Mutex
	events []interface{}
}

func (s *fakeSink) Publish(event interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSink) measurements() []events.NewMeasurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.NewMeasurement
	for _, e := range s.events {
		if m, ok := e.(events.NewMeasurement); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSink) baselines() []events.NewBaseline {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.NewBaseline
	for _, e := range s.events {
		if b, ok := e.(events.NewBaseline); ok {
			out = append(out, b)
		}
	}
	return out
}

// S1 - cold start without a stored baseline.
func TestColdStartReachesFunctioningViaBaselineAcquisition(t *testing.T) {
	dev := &fakeDevice{getBaseline: sgp30.Measurement{ECO2: 450, TVOC: 5}}
	sink := &fakeSink{}
	c := controller.New(dev, sink, nil, nil)

	if c.State() != controller.Uninitialized {
		t.Fatalf("initial state = %v, want Uninitialized", c.State())
	}

	c.Tick() // t=1s: init_air_quality -> Initializing
	if c.State() != controller.Initializing {
		t.Fatalf("after tick 1, state = %v, want Initializing", c.State())
	}
	if dev.initCalls != 1 {
		t.Errorf("initCalls = %d, want 1", dev.initCalls)
	}

	for i := 0; i < 14; i++ { // t=2..15s: warm-up measures, still Initializing
		c.Tick()
		if c.State() != controller.Initializing {
			t.Fatalf("tick %d: state = %v, want Initializing", i+2, c.State())
		}
	}

	c.Tick() // t=16s: n==15 -> BaselineAcquisition (no baseline_in)
	if c.State() != controller.BaselineAcquisition {
		t.Fatalf("after tick 16, state = %v, want BaselineAcquisition", c.State())
	}
	if dev.measureCalls != 15 {
		t.Errorf("measureCalls = %d, want 15", dev.measureCalls)
	}

	for i := 0; i < 59; i++ { // t=17..75s
		c.Tick()
		if c.State() != controller.BaselineAcquisition {
			t.Fatalf("tick %d: state = %v, want BaselineAcquisition", i, c.State())
		}
	}

	c.Tick() // t=76s: n==60 -> get_baseline, emit NewBaseline, Functioning
	if c.State() != controller.Functioning {
		t.Fatalf("after tick 76, state = %v, want Functioning", c.State())
	}
	if dev.getBaselines != 1 {
		t.Errorf("getBaselines = %d, want 1", dev.getBaselines)
	}
	if bs := sink.baselines(); len(bs) != 1 || bs[0].Measurement != dev.getBaseline {
		t.Errorf("emitted baselines = %+v, want one %+v", bs, dev.getBaseline)
	}
}

// S2 - warm start with a valid stored baseline skips BaselineAcquisition.
func TestWarmStartSkipsBaselineAcquisition(t *testing.T) {
	dev := &fakeDevice{}
	sink := &fakeSink{}
	baselineIn := sgp30.Measurement{ECO2: 0x8A34, TVOC: 0x1B20}
	c := controller.New(dev, sink, nil, &baselineIn)

	for i := 0; i < 16; i++ {
		c.Tick()
	}
	if c.State() != controller.Functioning {
		t.Fatalf("after tick 16, state = %v, want Functioning", c.State())
	}
	if len(dev.setBaselines) != 1 || dev.setBaselines[0] != baselineIn {
		t.Errorf("setBaselines = %+v, want one %+v", dev.setBaselines, baselineIn)
	}
	if bs := sink.baselines(); len(bs) != 1 || bs[0].Measurement != baselineIn {
		t.Errorf("emitted baselines = %+v, want one %+v", bs, baselineIn)
	}
}

// S3 - a transient transport error leaves state and window untouched, and
// a later successful tick proceeds normally.
func TestTransientErrorLeavesStateUnchanged(t *testing.T) {
	fail := false
	dev := &fakeDevice{measureFn: func() (sgp30.Measurement, error) {
		if fail {
			fail = false
			return sgp30.Measurement{}, errors.New("invalid crc")
		}
		return sgp30.Measurement{ECO2: 410, TVOC: 8}, nil
	}}
	sink := &fakeSink{}
	c := controller.New(dev, sink, nil, nil)

	for i := 0; i < 16; i++ {
		c.Tick()
	}
	if c.State() != controller.BaselineAcquisition {
		t.Fatalf("state = %v, want BaselineAcquisition", c.State())
	}

	fail = true
	c.Tick() // faulty measurement: no crash, no state change
	if c.State() != controller.BaselineAcquisition {
		t.Fatalf("after faulty tick, state = %v, want BaselineAcquisition", c.State())
	}

	c.Tick() // next tick proceeds normally
	if c.State() != controller.BaselineAcquisition {
		t.Fatalf("after recovery tick, state = %v, want BaselineAcquisition", c.State())
	}
}

// S4, publish side only - a publish request makes the next tick emit the
// window mean as a NewMeasurement. Reconfiguring the publish interval in Run
// is not exercised here.
func TestPublishIntervalRequestEmitsMean(t *testing.T) {
	dev := &fakeDevice{}
	sink := &fakeSink{}
	baselineIn := sgp30.Measurement{ECO2: 500, TVOC: 10}
	c := controller.New(dev, sink, nil, &baselineIn)

	for i := 0; i < 16; i++ {
		c.Tick()
	}
	if c.State() != controller.Functioning {
		t.Fatalf("state = %v, want Functioning", c.State())
	}

	if len(sink.measurements()) != 0 {
		t.Fatalf("no measurement should be emitted before a publish request")
	}
	c.RequestPublish()
	c.Tick()
	got := sink.measurements()
	if len(got) != 1 {
		t.Fatalf("measurements emitted = %d, want 1", len(got))
	}
	if got[0].Measurement.ECO2 != 400 || got[0].Measurement.TVOC != 0 {
		t.Errorf("emitted mean = %+v, want {400 0} (the single Functioning-state sample taken this tick)", got[0].Measurement)
	}
}

// Property 7 - state monotonicity: the observed state sequence from a
// nominal run is a prefix of Uninitialized -> Initializing ->
// (BaselineAcquisition | Functioning) -> Functioning.
func TestStateMonotonicity(t *testing.T) {
	dev := &fakeDevice{getBaseline: sgp30.Measurement{ECO2: 420, TVOC: 3}}
	sink := &fakeSink{}
	c := controller.New(dev, sink, nil, nil)

	order := map[controller.State]int{
		controller.Uninitialized:       0,
		controller.Initializing:        1,
		controller.BaselineAcquisition: 2,
		controller.Functioning:         3,
	}
	last := -1
	for i := 0; i < 80; i++ {
		c.Tick()
		rank := order[c.State()]
		if rank < last {
			t.Fatalf("tick %d: state %v (rank %d) regressed behind rank %d", i, c.State(), rank, last)
		}
		last = rank
	}
	if c.State() != controller.Functioning {
		t.Fatalf("final state = %v, want Functioning", c.State())
	}
}

// Run drives its own heartbeat ticker on one goroutine while inbound
// events and shutdown arrive concurrently from others; an errgroup races
// all three against each other the way a real process does, instead of
// each being exercised in isolation.
func TestRunAdvancesStateWhileReceivingEventsConcurrently(t *testing.T) {
	dev := &fakeDevice{}
	sink := &fakeSink{}
	c := controller.New(dev, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	inbound := make(chan interface{})

	group.Go(func() error {
		c.Run(ctx, inbound)
		return nil
	})
	group.Go(func() error {
		select {
		case inbound <- events.NewPublishInterval{Seconds: 1}:
		case <-ctx.Done():
		}
		return nil
	})
	group.Go(func() error {
		deadline := time.After(3 * time.Second)
		for {
			if dev.calls() > 0 {
				cancel()
				return nil
			}
			select {
			case <-deadline:
				cancel()
				return errors.New("controller never ticked within its heartbeat budget")
			case <-time.After(10 * time.Millisecond):
			}
		}
	})

	if err := group.Wait(); err != nil {
		t.Fatal(err)
	}
	if dev.calls() == 0 {
		t.Fatal("Run exited without ever invoking the device")
	}
}
