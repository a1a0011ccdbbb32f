// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package provisioning

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/bcl/sgp30-node/events"
)

// Config is the decoded shape of the operator-supplied provisioning
// payload. Wi-Fi bring-up and the soft-AP transport that deliver it are
// external collaborators; this package only models the data.
type Config struct {
	WiFiSSID               string `json:"wifi_ssid"`
	WiFiPassword           string `json:"wifi_password"`
	PlatformEndpoint       string `json:"platform_endpoint"`
	CACertPath             string `json:"ca_cert_path"`
	ClientCertPath         string `json:"client_cert_path"`
	ClientKeyPath          string `json:"client_key_path"`
	PublishIntervalSeconds uint16 `json:"publish_interval_seconds"`
}

// DecodeConfig round-trips raw through encoding/json into a Config,
// mirroring the decode-by-remarshal idiom the retrieved pack's own SGP30
// node config uses for its loosely-typed provisioning payload.
func DecodeConfig(raw map[string]interface{}) (*Config, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "provisioning: marshal raw config")
	}
	var cfg Config
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return nil, errors.Wrap(err, "provisioning: decode config")
	}
	return &cfg, nil
}

// PublishInterval returns the configured publish cadence as a
// time.Duration.
func (c *Config) PublishInterval() time.Duration {
	return time.Duration(c.PublishIntervalSeconds) * time.Second
}

// PublishIntervalEvent converts the config's cadence into the event the
// controller reconfigures itself from.
func (c *Config) PublishIntervalEvent() events.NewPublishInterval {
	return events.NewPublishInterval{Seconds: c.PublishIntervalSeconds}
}
