// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package transport frames SGP30 commands on a shared I²C bus.
//
// It owns the one thing every SGP30 operation needs and gets wrong if done
// by hand: a per-device mutex held across the write/delay/read sequence,
// and a CRC-8 check on every 16-bit word (datasheet poly 0x31, init 0xFF).
package transport
