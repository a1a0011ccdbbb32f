// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package controller drives the SGP30 through its warm-up and calibration
// lifecycle - Uninitialized, Initializing, BaselineAcquisition, Functioning
// - from a single goroutine, aggregating measurements into a moving window
// and emitting events for the baseline store and telemetry publisher.
package controller
