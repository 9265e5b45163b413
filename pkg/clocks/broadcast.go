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

package clocks

import (
	"errors"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrNotSet = errors.New("broadcast clock has not been set")

// BroadcastClock is a UTC and local time pair received over the air, kept
// as offsets from system time. Updates carry a sequence number and stale
// ones are dropped.
type BroadcastClock struct {
	clock       clockwork.Clock
	utcOffset   time.Duration
	localOffset time.Duration
	watermark   int64
	mu          syncutil.RWMutex
	set         bool
}

func NewBroadcastClock(clock clockwork.Clock) *BroadcastClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BroadcastClock{clock: clock}
}

// wallAsUTC reinterprets the wall clock fields of t as UTC.
func wallAsUTC(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// Set records a new broadcast time. Once a value has been accepted, seq must
// be greater than the last accepted sequence or the update is ignored. The
// local argument is read as a wall clock; its location is ignored.
func (b *BroadcastClock) Set(utc, local time.Time, seq int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.set && seq <= b.watermark {
		log.Debug().
			Int64("seq", seq).
			Int64("watermark", b.watermark).
			Msg("clocks: stale broadcast time ignored")
		return false
	}

	now := b.clock.Now()
	b.utcOffset = utc.Sub(now)
	b.localOffset = wallAsUTC(local).Sub(now)
	b.watermark = seq
	b.set = true
	return true
}

// Get returns the current broadcast UTC time and local wall clock. The local
// value's location is UTC and only its fields are meaningful.
func (b *BroadcastClock) Get() (utc, local time.Time, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.set {
		return time.Time{}, time.Time{}, ErrNotSet
	}
	now := b.clock.Now().UTC()
	return now.Add(b.utcOffset), now.Add(b.localOffset), nil
}

// Adjust must be called whenever system time is stepped by delta.
func (b *BroadcastClock) Adjust(delta time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		return
	}
	b.utcOffset -= delta
	b.localOffset -= delta
}

// Sequence returns the last accepted sequence number and whether any value
// has been accepted.
func (b *BroadcastClock) Sequence() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.watermark, b.set
}
