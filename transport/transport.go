// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sigurn/crc8"
	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/i2c"
)

// Addr is the SGP30's fixed 7-bit I²C address.
const Addr = 0x58

// crcTable implements the datasheet's CRC-8: poly 0x31, init 0xFF, no
// reflection, no final XOR.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/SGP30",
})

// Sentinel error kinds. Wrapped with additional context via
// github.com/pkg/errors before being returned to a caller.
var (
	ErrBusWrite   = errors.New("transport: bus write failed")
	ErrBusRead    = errors.New("transport: bus read failed")
	ErrInvalidCRC = errors.New("transport: invalid crc")
	ErrTimeout    = errors.New("transport: sensor did not respond in time")
)

// executeTimeoutMargin pads a command's own write/read delays to get its
// total budget: those delays are the datasheet's expected timing, not an
// allowance for a stuck bus, so Execute needs a little more room before
// declaring the sensor unresponsive.
const executeTimeoutMargin = 100 * time.Millisecond

// Device is the capability the sensor driver depends on: a single
// command/response exchange, with exclusive access to the bus guaranteed
// for its whole duration.
type Device interface {
	// Execute transmits cmd followed by txWords (each followed by its CRC-8
	// byte), waits writeDelay, then - if respWordCount > 0 - reads
	// respWordCount words (each followed by a CRC-8 byte), waits readDelay,
	// and returns the verified words.
	Execute(cmd uint16, txWords []uint16, writeDelay time.Duration, respWordCount int, readDelay time.Duration) ([]uint16, error)
}

// I2C is the production Device: an SGP30 sitting on a periph.io I²C bus.
// A single mutex serializes every Execute call; it is held across the
// entire transmit/delay/receive sequence and released on every exit path.
type I2C struct {
	mu   sync.Mutex
	conn conn.Conn
}

// New wraps bus as an SGP30 transport at the device's fixed address.
func New(bus i2c.Bus) *I2C {
	return &I2C{conn: &i2c.Dev{Bus: bus, Addr: Addr}}
}

// newWithConn is used by tests to drive Execute against a fake conn.Conn,
// bypassing the i2c.Dev address wrapping New does for a real bus.
func newWithConn(c conn.Conn) *I2C {
	return &I2C{conn: c}
}

type executeResult struct {
	words []uint16
	err   error
}

// Execute implements Device. The transmit/delay/receive sequence runs on
// its own goroutine so it can be raced against the command's budget: a bus
// that never completes the exchange returns ErrTimeout instead of hanging
// Execute's caller forever. The goroutine still holds the mutex for its
// own lifetime even past a timeout, so a wedged command keeps later calls
// blocked rather than corrupting an in-flight exchange.
func (t *I2C) Execute(cmd uint16, txWords []uint16, writeDelay time.Duration, respWordCount int, readDelay time.Duration) ([]uint16, error) {
	budget := writeDelay + readDelay + executeTimeoutMargin

	done := make(chan executeResult, 1)
	go func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		words, err := t.doExecute(cmd, txWords, writeDelay, respWordCount, readDelay)
		done <- executeResult{words, err}
	}()

	select {
	case r := <-done:
		return r.words, r.err
	case <-time.After(budget):
		return nil, errors.Wrapf(ErrTimeout, "command %#04x exceeded its %s budget", cmd, budget)
	}
}

func (t *I2C) doExecute(cmd uint16, txWords []uint16, writeDelay time.Duration, respWordCount int, readDelay time.Duration) ([]uint16, error) {
	if err := t.conn.Tx(encodeCommand(cmd, txWords), nil); err != nil {
		return nil, errors.Wrap(ErrBusWrite, err.Error())
	}

	if writeDelay > 0 {
		time.Sleep(writeDelay)
	}

	if respWordCount == 0 {
		return nil, nil
	}

	raw := make([]byte, respWordCount*3)
	if err := t.conn.Tx(nil, raw); err != nil {
		return nil, errors.Wrap(ErrBusRead, err.Error())
	}

	if readDelay > 0 {
		time.Sleep(readDelay)
	}

	words := make([]uint16, respWordCount)
	for i := 0; i < respWordCount; i++ {
		triplet := raw[i*3 : i*3+3]
		if !Verify(triplet) {
			return nil, errors.Wrapf(ErrInvalidCRC, "response word %d: %#v", i, triplet)
		}
		words[i] = uint16(triplet[0])<<8 | uint16(triplet[1])
	}
	return words, nil
}

// Generate computes the CRC-8 byte for a two-byte word.
func Generate(word []byte) byte {
	return crc8.Checksum(word, crcTable)
}

// Verify checks a (data-high, data-low, crc) triplet. It returns true iff
// the CRC-8 remainder over the full triplet is zero.
func Verify(triplet []byte) bool {
	return crc8.Checksum(triplet, crcTable) == 0
}

// encodeCommand frames cmd and its payload words per the datasheet: the
// opcode big-endian, each payload word followed by its CRC-8 byte.
func encodeCommand(cmd uint16, words []uint16) []byte {
	buf := make([]byte, 0, 2+3*len(words))
	buf = append(buf, byte(cmd>>8), byte(cmd))
	for _, w := range words {
		wb := [2]byte{byte(w >> 8), byte(w)}
		buf = append(buf, wb[0], wb[1], Generate(wb[:]))
	}
	return buf
}
