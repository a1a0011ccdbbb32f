// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package window implements the fixed-capacity moving-average buffer the
// sensor controller aggregates measurements into before publishing.
package window
