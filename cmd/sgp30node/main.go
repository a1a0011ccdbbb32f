// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"io/ioutil"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/op/go-logging"

	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/bcl/sgp30-node/baseline"
	"github.com/bcl/sgp30-node/controller"
	"github.com/bcl/sgp30-node/events"
	"github.com/bcl/sgp30-node/provisioning"
	"github.com/bcl/sgp30-node/sgp30"
	"github.com/bcl/sgp30-node/telemetry"
	"github.com/bcl/sgp30-node/transport"
)

var log = logging.MustGetLogger("sgp30node")

func main() {
	i2cBus := flag.String("i2c-bus", "", "I2C bus name (empty selects the first available)")
	baselinePath := flag.String("baseline-file", ".sgp30_baseline", "path to the persisted calibration baseline")
	mqttBroker := flag.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	mqttClientID := flag.String("mqtt-client-id", "sgp30node", "MQTT client identifier")
	mqttTopic := flag.String("mqtt-topic", "sgp30/telemetry", "MQTT topic for published measurements")
	mqttCACert := flag.String("mqtt-ca-cert", "", "path to a CA certificate for TLS broker connections")
	mqttClientCert := flag.String("mqtt-client-cert", "", "path to a client certificate for TLS broker connections")
	mqttClientKey := flag.String("mqtt-client-key", "", "path to a client key for TLS broker connections")
	provisioningPath := flag.String("provisioning-file", "", "path to a JSON provisioning document (publish interval override etc.)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	setupLogging(*verbose)

	if _, err := host.Init(); err != nil {
		log.Fatalf("periph host init: %v", err)
	}

	i2cBusHandle, err := i2creg.Open(*i2cBus)
	if err != nil {
		log.Fatalf("open I2C bus: %v", err)
	}
	defer i2cBusHandle.Close()

	dev := sgp30.New(transport.New(i2cBusHandle))

	store := baseline.NewFileStore(*baselinePath)
	baselineIn := loadBaseline(store)

	eventBus := events.NewBus()
	baselineEvents, unsubBaseline := eventBus.Subscribe(4)
	defer unsubBaseline()
	telemetryEvents, unsubTelemetry := eventBus.Subscribe(16)
	defer unsubTelemetry()

	listener := baseline.NewListener(store, realClock{}, log)
	pub, err := newTelemetryPublisher(*mqttBroker, *mqttClientID, *mqttTopic, *mqttCACert, *mqttClientCert, *mqttClientKey)
	if err != nil {
		log.Fatalf("configure telemetry publisher: %v", err)
	}
	if err := pub.Connect(); err != nil {
		log.Fatalf("connect to MQTT broker: %v", err)
	}
	defer pub.Disconnect(250)

	core := controller.New(dev, eventBus, log, baselineIn)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	provisioningUpdates := make(chan interface{}, 1)
	if *provisioningPath != "" {
		if err := loadProvisioning(*provisioningPath, provisioningUpdates); err != nil {
			log.Errorf("load provisioning file: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); listener.Run(ctx, baselineEvents) }()
	go func() { defer wg.Done(); pub.Run(ctx, telemetryEvents) }()
	go func() { defer wg.Done(); core.Run(ctx, provisioningUpdates) }()

	wg.Wait()
	log.Info("shut down cleanly")
}

// loadBaseline reads a prior calibration baseline from store and returns
// it only if it is present and not yet expired. Any other outcome (not
// found, corrupt, store I/O failure, expired) starts the controller with no
// prior baseline; every Get error is logged the same way, at debug level.
func loadBaseline(store *baseline.FileStore) *sgp30.Measurement {
	tm, err := store.Get()
	if err != nil {
		log.Debugf("no usable stored baseline: %v", err)
		return nil
	}
	if tm.IsExpired(realClock{}.Now()) {
		log.Info("stored baseline is older than the validity window, discarding")
		return nil
	}
	m := tm.Measurement
	return &m
}

// loadProvisioning decodes the JSON provisioning document at path and
// queues its publish-interval override for the controller to pick up on
// its next Run iteration. Wi-Fi bring-up and the soft-AP transport that
// would normally deliver this document are external collaborators; this
// CLI only reads it from a local file.
func loadProvisioning(path string, out chan<- interface{}) error {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	cfg, err := provisioning.DecodeConfig(doc)
	if err != nil {
		return err
	}
	if cfg.PublishIntervalSeconds > 0 {
		out <- cfg.PublishIntervalEvent()
	}
	return nil
}

func newTelemetryPublisher(broker, clientID, topic, caCert, clientCert, clientKey string) (*telemetry.Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
	}

	if caCert != "" || clientCert != "" {
		tlsConfig, err := buildTLSConfig(caCert, clientCert, clientKey)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return telemetry.New(opts, topic, 1, false, log), nil
}

func buildTLSConfig(caCertPath, clientCertPath, clientKeyPath string) (*tls.Config, error) {
	cfg := &tls.Config{}

	if caCertPath != "" {
		pem, err := ioutil.ReadFile(caCertPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(pem)
		cfg.RootCAs = pool
	}

	if clientCertPath != "" {
		cert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// realClock returns seconds since the Unix epoch. It assumes the host
// clock is already synchronized; a pre-sync clock returning the epoch
// origin is handled by TimedMeasurement.IsExpired, not here.
type realClock struct{}

func (realClock) Now() int64 { return time.Now().Unix() }

func setupLogging(verbose bool) {
	level := logging.INFO
	if verbose {
		level = logging.DEBUG
	}

	var format string
	if isatty.IsTerminal(os.Stdout.Fd()) {
		format = "%{color}%{time:15:04:05} %{level:.4s}%{color:reset} %{message}"
	} else {
		format = "%{time:15:04:05} %{level:.4s} %{message}"
	}

	backend := logging.NewLogBackend(colorable.NewColorableStdout(), "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(format))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}
