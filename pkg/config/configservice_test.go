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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscoveryEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		enabled *bool
		name    string
		want    bool
	}{
		{name: "nil defaults to enabled", enabled: nil, want: true},
		{name: "true", enabled: boolPtr(true), want: true},
		{name: "false", enabled: boolPtr(false), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inst := &Instance{vals: Values{Service: Service{Discovery: Discovery{Enabled: tt.enabled}}}}
			assert.Equal(t, tt.want, inst.DiscoveryEnabled())
		})
	}
}

func TestAPIListen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port   *int
		name   string
		listen string
		want   string
	}{
		{name: "default port", want: ":7498"},
		{name: "custom port", port: intPtr(8123), want: ":8123"},
		{name: "explicit listen wins", port: intPtr(8123), listen: "127.0.0.1:9000", want: "127.0.0.1:9000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inst := &Instance{vals: Values{Service: Service{APIPort: tt.port, APIListen: tt.listen}}}
			assert.Equal(t, tt.want, inst.APIListen())
		})
	}
}

func TestMQTTPublishers(t *testing.T) {
	t.Parallel()

	pubs := []MQTTPublisher{
		{Broker: "mqtt://broker:1883", Topic: "timekeeper/events", Filter: []string{"time.changed"}},
		{Broker: "mqtt://other:1883", Topic: "t", Enabled: boolPtr(false)},
	}
	inst := &Instance{vals: Values{Service: Service{Publishers: Publishers{MQTT: pubs}}}}
	assert.Equal(t, pubs, inst.MQTTPublishers())
	assert.Empty(t, (&Instance{}).MQTTPublishers())
}
