// Copyright 2020 by Brian C. Lane <bcl@brianlane.com>. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package telemetry

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bcl/sgp30-node/events"
	"github.com/bcl/sgp30-node/sgp30"
)

// Sender is the narrow capability Publisher needs from an MQTT client -
// a synchronous publish that blocks until the broker has acknowledged (or
// rejected) the message. mqttSender adapts a real *mqtt.Client to it;
// tests substitute a fake.
type Sender interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
}

// Logger is the narrow logging capability Publisher uses.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// mqttSender adapts github.com/eclipse/paho.mqtt.golang's asynchronous,
// token-based Client.Publish to the synchronous Sender capability.
type mqttSender struct {
	client mqtt.Client
}

func (s mqttSender) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := s.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// payload is the wire shape published for each measurement. MQTT's wire
// format and the TLS handshake that protects it are Non-goals; only the
// JSON body is this package's concern.
type payload struct {
	ECO2      uint16 `json:"eco2"`
	TVOC      uint16 `json:"tvoc"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher subscribes to a controller's event stream and forwards every
// events.NewMeasurement it observes to an MQTT topic.
type Publisher struct {
	send     Sender
	topic    string
	qos      byte
	retained bool
	log      Logger
}

// New builds a Publisher around a pre-built *mqtt.ClientOptions - the
// caller owns TLS and broker-address configuration (Non-goals here); this
// package only decides what gets published and when.
func New(opts *mqtt.ClientOptions, topic string, qos byte, retained bool, log Logger) *Publisher {
	return &Publisher{
		send:     mqttSender{client: mqtt.NewClient(opts)},
		topic:    topic,
		qos:      qos,
		retained: retained,
		log:      log,
	}
}

// newWithSender is used by tests to substitute a fake Sender.
func newWithSender(send Sender, topic string, qos byte, retained bool, log Logger) *Publisher {
	return &Publisher{send: send, topic: topic, qos: qos, retained: retained, log: log}
}

// Connect opens the broker connection of the client New built and waits
// for its outcome. A Publisher around a substitute Sender returns nil.
func (p *Publisher) Connect() error {
	s, ok := p.send.(mqttSender)
	if !ok {
		return nil
	}
	token := s.client.Connect()
	token.Wait()
	return token.Error()
}

// Disconnect closes the broker connection, waiting up to quiesce
// milliseconds for in-flight work to complete.
func (p *Publisher) Disconnect(quiesce uint) {
	if s, ok := p.send.(mqttSender); ok {
		s.client.Disconnect(quiesce)
	}
}

// Run drains in until it closes or ctx is canceled. Every
// events.NewMeasurement is forwarded to the configured topic;
// events.NewBaseline is logged only - persisting a baseline is the store
// adapter's concern, not the telemetry platform's.
func (p *Publisher) Run(ctx context.Context, in <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-in:
			if !ok {
				return
			}
			switch e := event.(type) {
			case events.NewMeasurement:
				p.publish(e.Measurement)
			case events.NewBaseline:
				if p.log != nil {
					p.log.Infof("baseline refreshed: %+v", e.Measurement)
				}
			}
		}
	}
}

func (p *Publisher) publish(m sgp30.Measurement) {
	body, err := json.Marshal(payload{ECO2: m.ECO2, TVOC: m.TVOC, Timestamp: time.Now().Unix()})
	if err != nil {
		if p.log != nil {
			p.log.Errorf("marshal telemetry payload: %v", err)
		}
		return
	}
	if err := p.send.Publish(p.topic, p.qos, p.retained, body); err != nil && p.log != nil {
		p.log.Errorf("publish to %s: %v", p.topic, err)
	}
}
