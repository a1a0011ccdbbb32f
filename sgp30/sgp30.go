// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sgp30

import (
	"time"

	"github.com/bcl/sgp30-node/transport"
)

// Command words, per the datasheet.
const (
	cmdInitAirQuality    = 0x2003
	cmdMeasureAirQuality = 0x2008
	cmdGetBaseline       = 0x2015
	cmdSetBaseline       = 0x201e
	cmdGetSerialID       = 0x3682
)

// Per-command timing budgets the transport applies verbatim: how long to
// wait after transmit before issuing the read header, and - for commands
// with a response - the post-read cooldown.
const (
	initWriteDelay = 12 * time.Millisecond

	measureWriteDelay = 25 * time.Millisecond
	measureReadDelay  = 12 * time.Millisecond

	baselineWriteDelay = 20 * time.Millisecond
	baselineReadDelay  = 12 * time.Millisecond

	setBaselineWriteDelay = 13 * time.Millisecond

	serialWriteDelay = 12 * time.Millisecond
	serialReadDelay  = 12 * time.Millisecond
)

// Measurement is a single eCO2 (ppm) / TVOC (ppb) sample.
type Measurement struct {
	ECO2 uint16
	TVOC uint16
}

// Dev drives an SGP30 sensor through a transport.Device. It holds no state
// of its own beyond the transport - every call is a single command/response
// exchange, bus exclusivity and CRC checking are the transport's job.
type Dev struct {
	tr transport.Device
}

// New returns a driver for the SGP30 reachable through tr.
func New(tr transport.Device) *Dev {
	return &Dev{tr: tr}
}

// InitAirQuality starts the sensor's dynamic-baseline algorithm. It must be
// called exactly once per power-on before MeasureAirQuality, GetBaseline or
// SetBaseline; GetSerialID does not depend on it.
func (d *Dev) InitAirQuality() error {
	_, err := d.tr.Execute(cmdInitAirQuality, nil, initWriteDelay, 0, 0)
	return err
}

// MeasureAirQuality returns the current eCO2/TVOC reading. For the first
// 15 seconds after InitAirQuality it is definitionally (400, 0).
func (d *Dev) MeasureAirQuality() (Measurement, error) {
	words, err := d.tr.Execute(cmdMeasureAirQuality, nil, measureWriteDelay, 2, measureReadDelay)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{ECO2: words[0], TVOC: words[1]}, nil
}

// GetBaseline returns the sensor's current internal calibration baseline.
func (d *Dev) GetBaseline() (Measurement, error) {
	words, err := d.tr.Execute(cmdGetBaseline, nil, baselineWriteDelay, 2, baselineReadDelay)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{ECO2: words[0], TVOC: words[1]}, nil
}

// SetBaseline seeds the sensor's baseline registers from a previously read
// (and persisted) baseline. Words are transmitted eCO2 then TVOC.
func (d *Dev) SetBaseline(m Measurement) error {
	_, err := d.tr.Execute(cmdSetBaseline, []uint16{m.ECO2, m.TVOC}, setBaselineWriteDelay, 0, 0)
	return err
}

// GetSerialID returns the sensor's 48-bit unique identifier.
func (d *Dev) GetSerialID() (uint64, error) {
	words, err := d.tr.Execute(cmdGetSerialID, nil, serialWriteDelay, 3, serialReadDelay)
	if err != nil {
		return 0, err
	}
	return uint64(words[0])<<32 | uint64(words[1])<<16 | uint64(words[2]), nil
}
