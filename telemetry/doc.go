// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry forwards aggregated measurements to an MQTT broker.
// Wire format and the TLS handshake are the MQTT client's concern:
// Publisher takes already-configured client options from its caller, builds
// the client from them, and only decides what to publish and when.
package telemetry
