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

// Package tzrules reports daylight saving transitions for zones and matches
// zones against Windows style bias descriptors.
package tzrules

import (
	"github.com/ZaparooProject/timekeeper/pkg/helpers/syncutil"
	"github.com/ZaparooProject/timekeeper/pkg/tzif"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// NoValue marks a field with nothing to report.
const NoValue = -1

// YearRule summarises one calendar year of a zone. Offsets are seconds east
// of UTC and instants are unix seconds. DSTOffset, DSTStart and DSTEnd are
// NoValue when the year has no such transition.
type YearRule struct {
	Year         int   `json:"year"`
	UTCOffset    int   `json:"utcOffset"`
	DSTOffset    int   `json:"dstOffset"`
	DSTStart     int64 `json:"dstStart"`
	DSTEnd       int64 `json:"dstEnd"`
	HasDSTChange bool  `json:"hasDstChange"`
}

// Service parses each zone's rule file once and answers from the cache
// until Invalidate is called.
type Service struct {
	loader  *tzif.Loader
	catalog *zones.Catalog
	clock   clockwork.Clock
	fs      afero.Fs
	cache   map[string][]tzif.Transition
	mu      syncutil.RWMutex
}

func NewService(fs afero.Fs, searchPaths []string, catalog *zones.Catalog, clock clockwork.Clock) *Service {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		loader:  tzif.NewLoader(fs, searchPaths),
		catalog: catalog,
		clock:   clock,
		fs:      fs,
		cache:   make(map[string][]tzif.Transition),
	}
}

// Loader exposes the rule file loader, mainly to locate zone files.
func (s *Service) Loader() *tzif.Loader {
	return s.loader
}

// Invalidate drops every cached zone.
func (s *Service) Invalidate() {
	s.mu.Lock()
	n := len(s.cache)
	s.cache = make(map[string][]tzif.Transition)
	s.mu.Unlock()
	log.Debug().Int("zones", n).Msg("tzrules: cache cleared")
}

func (s *Service) transitions(zoneName string) []tzif.Transition {
	s.mu.RLock()
	ts, ok := s.cache[zoneName]
	s.mu.RUnlock()
	if ok {
		return ts
	}

	ts = s.loader.Load(zoneName)
	s.mu.Lock()
	s.cache[zoneName] = ts
	s.mu.Unlock()
	return ts
}

// RulesFor reports the DST rules of zoneName for each year. Years with no
// determinable offset are left out rather than guessed, so an unknown zone
// gives an empty list.
func (s *Service) RulesFor(zoneName string, years []int) []YearRule {
	ts := s.transitions(zoneName)
	out := make([]YearRule, 0, len(years))
	if len(ts) == 0 {
		return out
	}
	for _, y := range years {
		if r, ok := rulesForYear(ts, y); ok {
			out = append(out, r)
		}
	}
	return out
}

// rulesForYear scans the year's transitions. The last DST-entering one
// gives the DST offset and start, the last one leaving DST gives the
// standard offset and end. A year without transitions takes the steady
// state offset from the most recent earlier transition.
func rulesForYear(ts []tzif.Transition, year int) (YearRule, bool) {
	r := YearRule{
		Year:      year,
		DSTOffset: NoValue,
		DSTStart:  NoValue,
		DSTEnd:    NoValue,
	}

	var prev *tzif.Transition
	haveStd := false
	for i := range ts {
		tr := &ts[i]
		if tr.CalendarYear > year {
			break
		}
		if tr.CalendarYear == year {
			if tr.IsDST {
				r.HasDSTChange = true
				r.DSTOffset = int(tr.UTCOffsetSeconds)
				r.DSTStart = tr.Instant
			} else {
				r.UTCOffset = int(tr.UTCOffsetSeconds)
				haveStd = true
				if prev != nil && prev.IsDST {
					r.HasDSTChange = true
					r.DSTEnd = tr.Instant
				}
			}
		}
		prev = tr
	}

	if haveStd {
		return r, true
	}

	std, ok := steadyOffset(ts, year)
	if !ok {
		return YearRule{}, false
	}
	r.UTCOffset = std
	return r, true
}

// steadyOffset is the standard offset in force up to the end of year,
// preferring the latest non-DST transition.
func steadyOffset(ts []tzif.Transition, year int) (int, bool) {
	var last *tzif.Transition
	for i := range ts {
		tr := &ts[i]
		if tr.CalendarYear > year {
			break
		}
		if !tr.IsDST || last == nil || last.IsDST {
			last = tr
		}
	}
	if last == nil {
		return 0, false
	}
	return int(last.UTCOffsetSeconds), true
}
