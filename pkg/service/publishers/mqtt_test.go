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

package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestPublisher(cfg config.MQTTPublisher, fc *fakeClient) *MQTTPublisher {
	p := NewMQTTPublisher(cfg, "device-1", nil)
	p.newClient = func(*mqtt.ClientOptions) mqtt.Client { return fc }
	return p
}

func TestBrokerURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		broker string
		want   string
	}{
		{broker: "localhost:1883", want: "tcp://localhost:1883"},
		{broker: "ssl://mqtt.example.com:8883", want: "ssl://mqtt.example.com:8883"},
		{broker: "ws://10.0.0.2:9001/mqtt", want: "ws://10.0.0.2:9001/mqtt"},
	}

	for _, tt := range tests {
		t.Run(tt.broker, func(t *testing.T) {
			t.Parallel()
			p := NewMQTTPublisher(config.MQTTPublisher{Broker: tt.broker}, "", nil)
			assert.Equal(t, tt.want, p.BrokerURL())
		})
	}
}

func TestOptions_Credentials(t *testing.T) {
	t.Parallel()

	creds := map[string]config.BrokerCredentials{
		"mqtt://broker.lan:1883": {Username: "clock", Password: "hunter2"},
	}

	p := NewMQTTPublisher(config.MQTTPublisher{Broker: "broker.lan:1883"}, "", creds)
	opts := p.Options()
	assert.Equal(t, "clock", opts.Username)
	assert.Equal(t, "hunter2", opts.Password)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp", opts.Servers[0].Scheme)
	assert.Contains(t, opts.ClientID, "timekeeper-")

	other := NewMQTTPublisher(config.MQTTPublisher{Broker: "elsewhere:1883"}, "", creds)
	assert.Empty(t, other.Options().Username)
}

func TestTopic(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher(config.MQTTPublisher{Topic: "home/clock/"}, "", nil)
	assert.Equal(t, "home/clock/zone.changed", p.Topic(models.NotificationZoneChanged))

	p = NewMQTTPublisher(config.MQTTPublisher{Topic: "timekeeper"}, "", nil)
	assert.Equal(t, "timekeeper/time.changed", p.Topic(models.NotificationTimeChanged))
}

func TestMatchesFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		filter []string
		want   bool
	}{
		{name: "nil filter", method: models.NotificationTimeChanged, want: true},
		{name: "empty filter", filter: []string{}, method: models.NotificationClocksChanged, want: true},
		{
			name:   "listed",
			filter: []string{models.NotificationZoneChanged, models.NotificationTimeValidity},
			method: models.NotificationTimeValidity,
			want:   true,
		},
		{
			name:   "not listed",
			filter: []string{models.NotificationZoneChanged},
			method: models.NotificationClocksChanged,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewMQTTPublisher(config.MQTTPublisher{Filter: tt.filter}, "", nil)
			assert.Equal(t, tt.want, p.matchesFilter(tt.method))
		})
	}
}

func TestEnabled(t *testing.T) {
	t.Parallel()

	off := false
	on := true
	assert.True(t, Enabled(config.MQTTPublisher{}))
	assert.True(t, Enabled(config.MQTTPublisher{Enabled: &on}))
	assert.False(t, Enabled(config.MQTTPublisher{Enabled: &off}))
}

func TestStart_PublishesFiltered(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p := newTestPublisher(config.MQTTPublisher{
		Broker: "localhost:1883",
		Topic:  "timekeeper",
		Filter: []string{models.NotificationZoneChanged, models.NotificationTimeChanged},
	}, fc)

	notifs := make(chan models.Notification, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx, notifs))
	defer p.Stop()

	notifs <- models.Notification{Method: models.NotificationClocksChanged, Params: json.RawMessage(`{}`)}
	notifs <- models.Notification{
		Method: models.NotificationZoneChanged,
		Params: json.RawMessage(`{"zone":{"ZoneID":"Europe/Paris"}}`),
	}
	notifs <- models.Notification{Method: models.NotificationTimeChanged, Params: json.RawMessage(`{"source":"ntp"}`)}

	require.Eventually(t, func() bool { return len(fc.messages()) == 2 }, time.Second, 5*time.Millisecond)
	msgs := fc.messages()

	assert.Equal(t, "timekeeper/zone.changed", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	assert.Equal(t, byte(qos), msgs[0].qos)
	assert.Equal(t, "timekeeper/time.changed", msgs[1].topic)
	assert.False(t, msgs[1].retained)

	payload, ok := msgs[0].payload.([]byte)
	require.True(t, ok)
	var m Message
	require.NoError(t, json.Unmarshal(payload, &m))
	assert.Equal(t, models.NotificationZoneChanged, m.Method)
	assert.Equal(t, "device-1", m.DeviceID)
	assert.JSONEq(t, `{"zone":{"ZoneID":"Europe/Paris"}}`, string(m.Params))
}

func TestStart_Errors(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher(config.MQTTPublisher{}, "", nil)
	require.ErrorIs(t, p.Start(context.Background(), nil), ErrNoBroker)

	boom := errors.New("connection refused")
	p = newTestPublisher(config.MQTTPublisher{Broker: "localhost:1883"}, &fakeClient{connectErr: boom})
	require.ErrorIs(t, p.Start(context.Background(), nil), boom)
}

func TestStart_UnreachableBrokerKeepsRunning(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{neverConnected: true}
	p := newTestPublisher(config.MQTTPublisher{Broker: "localhost:1883", Topic: "t"}, fc)
	notifs := make(chan models.Notification)
	require.NoError(t, p.Start(context.Background(), notifs))
	p.Stop()
	assert.Zero(t, fc.disconnects, "never connected, nothing to disconnect")
}

func TestPublishErrorDoesNotStopForwarding(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{publishErr: errors.New("not connected")}
	p := newTestPublisher(config.MQTTPublisher{Broker: "localhost:1883", Topic: "t"}, fc)
	notifs := make(chan models.Notification)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx, notifs))

	notifs <- models.Notification{Method: models.NotificationTimeChanged}
	require.Eventually(t, func() bool { return fc.publishAttempts() == 1 }, time.Second, 5*time.Millisecond)
	fc.mu.Lock()
	fc.publishErr = nil
	fc.mu.Unlock()
	notifs <- models.Notification{Method: models.NotificationTimeChanged}

	require.Eventually(t, func() bool { return len(fc.messages()) == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p := newTestPublisher(config.MQTTPublisher{Broker: "localhost:1883"}, fc)
	require.NoError(t, p.Start(context.Background(), make(chan models.Notification)))

	p.Stop()
	p.Stop()
	assert.Equal(t, 1, fc.disconnects)
}
