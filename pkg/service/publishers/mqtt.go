// Zaparoo Timekeeper
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Timekeeper.
//
// Zaparoo Timekeeper is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Timekeeper is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Timekeeper.  If not, see <http://www.gnu.org/licenses/>.

// Package publishers forwards notifications to systems outside the API,
// currently MQTT brokers.
package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNoBroker = errors.New("mqtt publisher has no broker configured")

const (
	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 250
	qos             = 1
)

// retainedMethods describe current state rather than an event, so late
// subscribers should see the last value.
var retainedMethods = []string{
	models.NotificationTimeValidity,
	models.NotificationZoneChanged,
}

// Message is the payload published for each notification.
type Message struct {
	Params   json.RawMessage `json:"params,omitempty"`
	Method   string          `json:"method"`
	DeviceID string          `json:"deviceId,omitempty"`
}

// ClientFactory builds the MQTT client. Tests replace it.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// MQTTPublisher publishes notifications under <topic>/<method>.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient ClientFactory
	creds     map[string]config.BrokerCredentials
	done      chan struct{}
	deviceID  string
	cfg       config.MQTTPublisher
}

// NewMQTTPublisher creates a publisher. creds are matched against the
// broker URL for a username and password.
func NewMQTTPublisher(
	cfg config.MQTTPublisher,
	deviceID string,
	creds map[string]config.BrokerCredentials,
) *MQTTPublisher {
	return &MQTTPublisher{
		cfg:       cfg,
		deviceID:  deviceID,
		creds:     creds,
		newClient: mqtt.NewClient,
		done:      make(chan struct{}),
	}
}

// BrokerURL is the configured broker with tcp:// added when no scheme was
// given.
func (p *MQTTPublisher) BrokerURL() string {
	if strings.Contains(p.cfg.Broker, "://") {
		return p.cfg.Broker
	}
	return "tcp://" + p.cfg.Broker
}

// Options builds the client options, including credentials from the auth
// file when one matches the broker.
func (p *MQTTPublisher) Options() *mqtt.ClientOptions {
	broker := p.BrokerURL()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("timekeeper-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(true)

	if cred := config.LookupAuth(p.creds, broker); cred != nil {
		opts.SetUsername(cred.Username)
		opts.SetPassword(cred.Password)
	}

	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", broker).Msg("mqtt: connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("mqtt: connection lost")
	}
	return opts
}

// Start connects and forwards notifications until ctx is done, Stop is
// called or notifs closes.
func (p *MQTTPublisher) Start(ctx context.Context, notifs <-chan models.Notification) error {
	if p.cfg.Broker == "" {
		return ErrNoBroker
	}

	p.client = p.newClient(p.Options())
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Str("broker", p.BrokerURL()).Msg("mqtt: broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	go p.forward(ctx, notifs)
	return nil
}

// Stop disconnects. It is safe to call more than once.
func (p *MQTTPublisher) Stop() {
	select {
	case <-p.done:
		return
	default:
		close(p.done)
	}
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiet)
	}
}

func (p *MQTTPublisher) forward(ctx context.Context, notifs <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case n, ok := <-notifs:
			if !ok {
				return
			}
			if !p.matchesFilter(n.Method) {
				continue
			}
			if err := p.publish(n); err != nil {
				log.Error().Err(err).Str("method", n.Method).Msg("mqtt: publish failed")
			}
		}
	}
}

// Topic is where a notification method is published.
func (p *MQTTPublisher) Topic(method string) string {
	return strings.TrimSuffix(p.cfg.Topic, "/") + "/" + method
}

func (p *MQTTPublisher) publish(n models.Notification) error {
	payload, err := json.Marshal(Message{
		Method:   n.Method,
		DeviceID: p.deviceID,
		Params:   n.Params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	retained := slices.Contains(retainedMethods, n.Method)
	token := p.client.Publish(p.Topic(n.Method), qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.Topic(n.Method))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	log.Debug().Str("topic", p.Topic(n.Method)).Bool("retained", retained).Msg("mqtt: published")
	return nil
}

// matchesFilter passes everything when no filter is set.
func (p *MQTTPublisher) matchesFilter(method string) bool {
	return len(p.cfg.Filter) == 0 || slices.Contains(p.cfg.Filter, method)
}

// Enabled reports whether a configured publisher should run. Publishers
// are enabled unless switched off.
func Enabled(cfg config.MQTTPublisher) bool {
	return cfg.Enabled == nil || *cfg.Enabled
}
