// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package events implements the single-producer, multi-subscriber event
// fan-out the sensor controller uses to notify the telemetry publisher and
// the baseline store adapter without coupling to them directly.
package events
