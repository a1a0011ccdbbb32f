// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package baseline

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/bcl/sgp30-node/sgp30"
)

// Namespace and Key mirror the original firmware's NVS storage keys
// (SGP30_STORAGE_NAMESPACE / SGP30_NVS_BASELINE_KEY), kept here as the
// logical identity of the persisted value even though the Go store
// addresses it as a single file rather than a namespaced NVS blob.
const (
	Namespace = "sgp30"
	Key       = "baseline"
)

// ValidityWindow is the age beyond which a stored baseline is considered
// stale and must be reacquired from the sensor.
const ValidityWindow = 7 * 24 * time.Hour

var (
	// ErrNotFound is returned by Get when no baseline has ever been stored.
	ErrNotFound = errors.New("baseline: not found")
	// ErrCorrupt is returned by Get when the stored value cannot be decoded.
	ErrCorrupt = errors.New("baseline: corrupt")
	// ErrStoreIO is returned by Get or Set when the underlying filesystem
	// operation itself fails - a read, write, sync, or rename error distinct
	// from a missing or corrupt value.
	ErrStoreIO = errors.New("baseline: store i/o failed")
)

// TimedMeasurement pairs a calibration baseline with the time it was read
// from the sensor, so callers can judge its freshness.
type TimedMeasurement struct {
	Measurement sgp30.Measurement
	Time        int64
}

// IsExpired reports whether b is older than ValidityWindow as of now
// (seconds since the Unix epoch). A now of 0 - the value returned before
// time sync completes - always yields true, forcing reacquisition rather
// than trusting a baseline against an unsynced clock.
func (b TimedMeasurement) IsExpired(now int64) bool {
	if now == 0 {
		return true
	}
	return now-b.Time > int64(ValidityWindow.Seconds())
}

// wireFormat is the little-endian, fixed-size on-disk encoding: two 16-bit
// fields, a padding word to keep the 64-bit time field aligned, and the
// time itself.
type wireFormat struct {
	ECO2 uint16
	TVOC uint16
	_    uint16
	Time int64
}

// Store persists a single TimedMeasurement under Namespace/Key.
type Store interface {
	Get() (TimedMeasurement, error)
	Set(b TimedMeasurement) error
}

// FileStore is a Store backed by a single file on disk, committed
// atomically via a temp-file-plus-rename so a crash mid-write cannot
// corrupt the previously committed baseline.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore that persists to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get reads and decodes the stored baseline. It returns ErrNotFound if the
// file does not exist, ErrCorrupt if it exists but cannot be decoded, or
// ErrStoreIO if the read itself fails for any other reason.
func (s *FileStore) Get() (TimedMeasurement, error) {
	raw, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return TimedMeasurement{}, ErrNotFound
	}
	if err != nil {
		return TimedMeasurement{}, errors.Wrap(ErrStoreIO, err.Error())
	}

	var w wireFormat
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &w); err != nil {
		return TimedMeasurement{}, errors.Wrap(ErrCorrupt, err.Error())
	}

	return TimedMeasurement{
		Measurement: sgp30.Measurement{ECO2: w.ECO2, TVOC: w.TVOC},
		Time:        w.Time,
	}, nil
}

// Set atomically commits b, replacing any previously stored baseline. On
// failure the prior value remains intact: the new value is written to a
// temp file in the same directory and synced before the rename, so the
// commit is all-or-nothing from the target path's point of view. Any
// failure past encoding is reported as ErrStoreIO.
func (s *FileStore) Set(b TimedMeasurement) error {
	w := wireFormat{ECO2: b.Measurement.ECO2, TVOC: b.Measurement.TVOC, Time: b.Time}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, w); err != nil {
		return errors.Wrap(err, "baseline: encode")
	}

	dir := filepath.Dir(s.path)
	tmp, err := ioutil.TempFile(dir, ".baseline-*.tmp")
	if err != nil {
		return errors.Wrap(ErrStoreIO, err.Error())
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrap(ErrStoreIO, err.Error())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(ErrStoreIO, err.Error())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(ErrStoreIO, err.Error())
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrap(ErrStoreIO, err.Error())
	}
	return nil
}
