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

// Package broker fans the coordinator's notifications out to the API
// server and the outbound publishers.
package broker

import (
	"context"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Broker copies every notification from one source to all subscribers.
// Sends never block; a subscriber with a full buffer misses the
// notification.
type Broker struct {
	source      <-chan models.Notification
	subscribers map[int]chan models.Notification
	dropped     map[int]int
	done        chan struct{}
	mu          syncutil.RWMutex
	nextID      int
	closed      bool
}

func New(source <-chan models.Notification) *Broker {
	return &Broker{
		source:      source,
		subscribers: make(map[int]chan models.Notification),
		dropped:     make(map[int]int),
		done:        make(chan struct{}),
	}
}

// Run forwards notifications until ctx is done or the source closes, then
// closes every subscriber channel.
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)
	defer b.closeAll()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("broker: stopping")
			return
		case n, ok := <-b.source:
			if !ok {
				log.Debug().Msg("broker: source closed")
				return
			}
			b.broadcast(n)
		}
	}
}

// Done is closed once Run has returned.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

func (b *Broker) broadcast(n models.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			b.dropped[id]++
			log.Warn().
				Int("subscriber", id).
				Str("method", n.Method).
				Int("dropped", b.dropped[id]).
				Msg("broker: subscriber full, dropping notification")
		}
	}
}

// Subscribe registers a consumer with room for buffer pending
// notifications. After the broker has stopped the returned channel is
// already closed.
func (b *Broker) Subscribe(buffer int) (<-chan models.Notification, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Notification, buffer)
	id := b.nextID
	b.nextID++
	if b.closed {
		close(ch)
		return ch, id
	}
	b.subscribers[id] = ch
	log.Debug().Int("subscriber", id).Int("buffer", buffer).Msg("broker: subscribed")
	return ch, id
}

// Unsubscribe closes the subscriber's channel. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		delete(b.dropped, id)
		close(ch)
	}
}

// Dropped reports how many notifications a subscriber has missed.
func (b *Broker) Dropped(id int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[id]
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}
