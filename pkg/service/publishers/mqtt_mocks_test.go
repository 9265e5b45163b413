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
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type publishedMessage struct {
	payload  any
	topic    string
	qos      byte
	retained bool
}

// fakeClient records publishes. Only the calls the publisher makes do
// anything.
type fakeClient struct {
	connectErr     error
	publishErr     error
	published      []publishedMessage
	disconnects    int
	attempts       int
	connected      bool
	neverConnected bool
	mu             sync.Mutex
}

func (f *fakeClient) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

func (f *fakeClient) publishAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool {
	return f.IsConnected()
}

func (f *fakeClient) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.neverConnected {
		return &fakeToken{}
	}
	if f.connectErr != nil {
		return &fakeToken{complete: true, err: f.connectErr}
	}
	f.connected = true
	return &fakeToken{complete: true}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.publishErr != nil {
		return &fakeToken{complete: true, err: f.publishErr}
	}
	f.published = append(f.published, publishedMessage{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  payload,
	})
	return &fakeToken{complete: true}
}

func (*fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{complete: true}
}

func (*fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{complete: true}
}

func (*fakeClient) Unsubscribe(...string) mqtt.Token {
	return &fakeToken{complete: true}
}

func (*fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (*fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool {
	return t.complete
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return t.complete
}

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.complete {
		close(ch)
	}
	return ch
}

func (t *fakeToken) Error() error {
	return t.err
}
