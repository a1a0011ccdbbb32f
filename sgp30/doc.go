// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sgp30 drives a Sensirion SGP30 gas sensor through a
// transport.Device, exposing the five operations the sensor controller
// needs: init_air_quality, measure_air_quality, get_baseline, set_baseline
// and get_serial_id.
//
// Datasheet
//
// https://cdn.sparkfun.com/assets/c/0/a/2/e/Sensirion_Gas_Sensors_SGP30_Datasheet.pdf
package sgp30
