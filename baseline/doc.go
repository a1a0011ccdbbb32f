// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package baseline persists and retrieves the sensor's calibration
// baseline under a fixed namespace/key, validating it against a 7-day
// freshness window before it is trusted on startup.
package baseline
