// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package provisioning decodes the operator-supplied configuration that
// arrives from the soft-AP provisioning flow (an external collaborator,
// not implemented here) into the typed values the sensor node needs.
package provisioning
