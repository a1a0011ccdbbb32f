// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package controller

import (
	"context"
	"time"

	"github.com/bcl/sgp30-node/events"
	"github.com/bcl/sgp30-node/sgp30"
	"github.com/bcl/sgp30-node/window"
)

// Device is the narrow capability the controller needs from the sensor
// driver. *sgp30.Dev satisfies it; tests substitute a fake.
type Device interface {
	InitAirQuality() error
	MeasureAirQuality() (sgp30.Measurement, error)
	GetBaseline() (sgp30.Measurement, error)
	SetBaseline(sgp30.Measurement) error
}

// EventSink is the narrow capability for publishing events; *events.Bus
// satisfies it.
type EventSink interface {
	Publish(event interface{})
}

// Logger is the narrow logging capability, matching the subset of
// *go-logging.Logger the controller uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// State is one of the sensor lifecycle states.
type State int

const (
	Uninitialized State = iota
	Initializing
	BaselineAcquisition
	Functioning
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initializing:
		return "Initializing"
	case BaselineAcquisition:
		return "BaselineAcquisition"
	case Functioning:
		return "Functioning"
	default:
		return "Unknown"
	}
}

const (
	// initializingTicks is the number of warm-up reads the sensor datasheet
	// requires before its output is meaningful.
	initializingTicks = 15
	// firstBaselineTicks is how long BaselineAcquisition waits, from entry,
	// before reading the sensor's self-computed first baseline.
	firstBaselineTicks = 60
	// functioningBaselineTicks is the periodic baseline refresh cadence once
	// Functioning, measured in heartbeats since Functioning was entered.
	functioningBaselineTicks = 30

	// DefaultPublishInterval is the cadence at which the window mean is
	// emitted absent a provisioning override.
	DefaultPublishInterval = 10 * time.Second
	heartbeatInterval      = 1 * time.Second
)

// SensorCore owns the transport, window, and state for one sensor. It is
// constructed once at startup and driven exclusively by its own Run
// goroutine - no shared globals, no cross-goroutine access to its window.
type SensorCore struct {
	dev  Device
	sink EventSink
	log  Logger

	baselineIn *sgp30.Measurement

	state          State
	n              int
	win            window.Window
	publishPending bool

	publishInterval time.Duration
}

// New constructs a SensorCore in the Uninitialized state. baselineIn, when
// non-nil, is the valid unexpired baseline read from storage at startup;
// its presence skips BaselineAcquisition.
//
// SensorCore has no Clock of its own: every state transition here is
// defined in heartbeat counts, not wall-clock time. baseline.Listener owns
// the Clock instead, timestamping a baseline at the moment of persistence
// (see baseline.Listener.Run).
func New(dev Device, sink EventSink, log Logger, baselineIn *sgp30.Measurement) *SensorCore {
	return &SensorCore{
		dev:             dev,
		sink:            sink,
		log:             log,
		baselineIn:      baselineIn,
		state:           Uninitialized,
		publishInterval: DefaultPublishInterval,
	}
}

// State returns the controller's current lifecycle state.
func (c *SensorCore) State() State {
	return c.state
}

// Run drives the state machine until ctx is canceled. inbound carries
// provisioning updates (events.NewPublishInterval); any other value is
// ignored. Run never returns an error and never panics past its own
// boundary: a fatal internal condition resets the state machine to
// Uninitialized and logging continues.
func (c *SensorCore) Run(ctx context.Context, inbound <-chan interface{}) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	publish := time.NewTicker(c.publishInterval)
	defer publish.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			if npi, ok := event.(events.NewPublishInterval); ok {
				c.publishInterval = time.Duration(npi.Seconds) * time.Second
				publish.Reset(c.publishInterval)
				if c.log != nil {
					c.log.Infof("publish interval updated to %s", c.publishInterval)
				}
			}
		case <-publish.C:
			c.RequestPublish()
		case <-heartbeat.C:
			c.Tick()
		}
	}
}

// RequestPublish marks the window's mean as due for emission on the next
// tick that enqueues a measurement. It is exported so tests can drive
// publish cadence without waiting on a real timer.
func (c *SensorCore) RequestPublish() {
	c.publishPending = true
}

// Tick runs one heartbeat's worth of state-machine logic. It is exported
// so tests can drive the state machine deterministically, one heartbeat at
// a time, instead of waiting on real tickers. Any panic - which only a
// violated invariant should raise - is converted into a log line and a
// reset to Uninitialized, per the "no panics escape the controller"
// error-handling policy.
func (c *SensorCore) Tick() {
	defer func() {
		if r := recover(); r != nil {
			if c.log != nil {
				c.log.Errorf("fatal condition %v, resetting to Uninitialized", r)
			}
			c.transition(Uninitialized)
		}
	}()
	c.tick()
}

func (c *SensorCore) transition(to State) {
	if c.log != nil {
		c.log.Debugf("state transition %s -> %s", c.state, to)
	}
	c.state = to
	c.n = 0
}

func (c *SensorCore) tick() {
	c.n++
	switch c.state {
	case Uninitialized:
		c.tickUninitialized()
	case Initializing:
		c.tickInitializing()
	case BaselineAcquisition:
		c.tickBaselineAcquisition()
	case Functioning:
		c.tickFunctioning()
	}
}

func (c *SensorCore) tickUninitialized() {
	if err := c.dev.InitAirQuality(); err != nil {
		if c.log != nil {
			c.log.Errorf("init_air_quality: %v", err)
		}
		c.n = 0
		return
	}
	c.transition(Initializing)
}

func (c *SensorCore) tickInitializing() {
	m, err := c.dev.MeasureAirQuality()
	if err != nil {
		if c.log != nil {
			c.log.Errorf("measure_air_quality during warm-up: %v", err)
		}
		return
	}
	if m.ECO2 != 400 || m.TVOC != 0 {
		if c.log != nil {
			c.log.Debugf("warm-up measurement %+v deviates from the expected (400,0)", m)
		}
	}
	if c.n < initializingTicks {
		return
	}
	if c.baselineIn != nil {
		if err := c.dev.SetBaseline(*c.baselineIn); err != nil {
			if c.log != nil {
				c.log.Errorf("set_baseline: %v", err)
			}
			return
		}
		c.sink.Publish(events.NewBaseline{Measurement: *c.baselineIn})
		c.transition(Functioning)
		return
	}
	c.transition(BaselineAcquisition)
}

func (c *SensorCore) tickBaselineAcquisition() {
	m, err := c.dev.MeasureAirQuality()
	if err != nil {
		if c.log != nil {
			c.log.Errorf("measure_air_quality: %v", err)
		}
		return
	}
	c.win.Enqueue(m)
	c.emitMeanIfPending()

	if c.n < firstBaselineTicks {
		return
	}
	b, err := c.dev.GetBaseline()
	if err != nil {
		if c.log != nil {
			c.log.Errorf("get_baseline: %v", err)
		}
		return
	}
	c.sink.Publish(events.NewBaseline{Measurement: b})
	c.transition(Functioning)
}

func (c *SensorCore) tickFunctioning() {
	m, err := c.dev.MeasureAirQuality()
	if err != nil {
		if c.log != nil {
			c.log.Errorf("measure_air_quality: %v", err)
		}
		return
	}
	c.win.Enqueue(m)
	c.emitMeanIfPending()

	if c.n%functioningBaselineTicks != 0 {
		return
	}
	b, err := c.dev.GetBaseline()
	if err != nil {
		if c.log != nil {
			c.log.Errorf("get_baseline: %v", err)
		}
		return
	}
	c.sink.Publish(events.NewBaseline{Measurement: b})
}

// emitMeanIfPending publishes the window's mean as a NewMeasurement when a
// publish tick has fired since the last emission. Mean() failing here
// would mean Enqueue, just above, did not run - an invariant violation,
// not a transient condition - so it is raised as a panic for Tick's
// recover to catch rather than silently skipped.
func (c *SensorCore) emitMeanIfPending() {
	if !c.publishPending {
		return
	}
	mean, err := c.win.Mean()
	if err != nil {
		panic(err)
	}
	c.sink.Publish(events.NewMeasurement{Measurement: mean})
	c.publishPending = false
}
