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

package mocks

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FakeSystemClock implements ostime.Clock by moving a fake clock to the
// requested time. Every call is recorded.
type FakeSystemClock struct {
	Clock *clockwork.FakeClock
	Err   error
	sets  []int64
	mu    sync.Mutex
}

func NewFakeSystemClock(clock *clockwork.FakeClock) *FakeSystemClock {
	return &FakeSystemClock{Clock: clock}
}

func (f *FakeSystemClock) SetSystemClock(utcSeconds int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sets = append(f.sets, utcSeconds)
	if f.Clock != nil {
		f.Clock.Advance(time.Unix(utcSeconds, 0).Sub(f.Clock.Now()))
	}
	return nil
}

// Sets returns the unix seconds passed to each successful call.
func (f *FakeSystemClock) Sets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.sets))
	copy(out, f.sets)
	return out
}

// FakeZoneActivator records activated zone names.
type FakeZoneActivator struct {
	Err   error
	zones []string
	mu    sync.Mutex
}

func (f *FakeZoneActivator) Activate(zoneName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.zones = append(f.zones, zoneName)
	return nil
}

func (f *FakeZoneActivator) Activated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.zones))
	copy(out, f.zones)
	return out
}
