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

// Package clocks tracks per-source clock offsets relative to system time and
// the sequence-gated broadcast clock.
package clocks

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Well known source tags.
const (
	TagSystem = "system"
	TagManual = "manual"
	TagNITZ   = "nitz"
	TagNTP    = "ntp"
)

var (
	ErrUnknownSource = errors.New("unknown clock source")
	ErrReservedTag   = errors.New("clock source tag is reserved")
)

// Entry is a registered clock source. Offset is only meaningful when Known
// is set.
type Entry struct {
	LastUpdate time.Time     `json:"lastUpdate"`
	Tag        string        `json:"tag"`
	Priority   int           `json:"priority"`
	Offset     time.Duration `json:"offset"`
	Known      bool          `json:"known"`
}

// Change is emitted after a successful Update.
type Change struct {
	Timestamp time.Time
	Tag       string
	Priority  int
	Offset    time.Duration
}

// Reading is the result of a Query.
type Reading struct {
	Time   time.Time
	Tag    string
	Offset time.Duration
}

// Registry holds the offset of every known clock source from system time.
// A manual entry always exists and the system tag is synthetic.
type Registry struct {
	clock          clockwork.Clock
	onChange       func(Change)
	entries        map[string]*Entry
	mu             syncutil.RWMutex
	manualOverride bool
}

// NewRegistry creates a registry containing only the manual entry. onChange
// may be nil.
func NewRegistry(clock clockwork.Clock, onChange func(Change)) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:    clock,
		onChange: onChange,
		entries: map[string]*Entry{
			TagManual: {Tag: TagManual},
		},
	}
}

// Register adds a source or updates an existing one. Re-registering only
// changes the priority and, when offset is non-nil, the offset. A known
// offset is never cleared.
func (r *Registry) Register(tag string, priority int, offset *time.Duration) error {
	if tag == "" || tag == TagSystem {
		return fmt.Errorf("%w: %q", ErrReservedTag, tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tag]
	if !ok {
		e = &Entry{Tag: tag}
		r.entries[tag] = e
	}
	e.Priority = priority
	if offset != nil {
		e.Offset = *offset
		e.Known = true
		e.LastUpdate = r.clock.Now()
	}

	log.Debug().Str("tag", tag).Int("priority", priority).Msg("clocks: source registered")
	return nil
}

// Update stores a new offset for a registered source and emits a Change.
func (r *Registry) Update(tag string, offset time.Duration) error {
	r.mu.Lock()
	e, ok := r.entries[tag]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownSource, tag)
	}
	now := r.clock.Now()
	e.Offset = offset
	e.Known = true
	e.LastUpdate = now
	ch := Change{
		Tag:       tag,
		Priority:  e.Priority,
		Offset:    offset,
		Timestamp: now,
	}
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(ch)
	}
	return nil
}

// AdjustAll must be called whenever system time is stepped by delta. Every
// entry's offset is decremented so its absolute time is unchanged.
func (r *Registry) AdjustAll(delta time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Known {
			e.Offset -= delta
		}
	}
}

// SetManualOverrideEnabled toggles whether Query may substitute the manual
// entry when a caller asks for it.
func (r *Registry) SetManualOverrideEnabled(enabled bool) {
	r.mu.Lock()
	r.manualOverride = enabled
	r.mu.Unlock()
}

// ManualOverrideEnabled reports the current manual override toggle.
func (r *Registry) ManualOverrideEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manualOverride
}

// Query resolves the time for tag. When manualOverride is requested, the
// toggle is enabled and the manual entry has a known offset, the manual
// entry wins regardless of tag. Otherwise tag is looked up, then
// fallbackTag if tag is absent or has no known offset.
func (r *Registry) Query(tag string, manualOverride bool, fallbackTag string) (Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()

	if manualOverride && r.manualOverride {
		if m := r.entries[TagManual]; m.Known {
			return Reading{Tag: TagManual, Offset: m.Offset, Time: now.Add(m.Offset)}, nil
		}
	}

	if rd, ok := r.lookup(tag, now); ok {
		return rd, nil
	}
	if fallbackTag != "" {
		if rd, ok := r.lookup(fallbackTag, now); ok {
			return rd, nil
		}
	}
	return Reading{}, fmt.Errorf("%w: %q", ErrUnknownSource, tag)
}

func (r *Registry) lookup(tag string, now time.Time) (Reading, bool) {
	if tag == TagSystem {
		return Reading{Tag: TagSystem, Time: now}, true
	}
	e, ok := r.entries[tag]
	if !ok || !e.Known {
		return Reading{}, false
	}
	return Reading{Tag: tag, Offset: e.Offset, Time: now.Add(e.Offset)}, true
}

// Entry returns a copy of a registered entry.
func (r *Registry) Entry(tag string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tag]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries, highest priority first.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// Best returns the highest priority source with a known offset, or the
// system clock when none is known.
func (r *Registry) Best() Reading {
	for _, e := range r.Entries() {
		if e.Known {
			return Reading{Tag: e.Tag, Offset: e.Offset, Time: r.clock.Now().Add(e.Offset)}
		}
	}
	return Reading{Tag: TagSystem, Time: r.clock.Now()}
}
