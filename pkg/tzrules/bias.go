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

package tzrules

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoMatch           = errors.New("no zone matches the bias descriptor")
	ErrInvalidDescriptor = errors.New("invalid bias descriptor")
)

// lastWeek selects the last occurrence of the weekday in the month.
const lastWeek = 5

const defaultDaylightBias = -60

// TransitionRule is a Windows/EAS SYSTEMTIME style recurring date: the
// Week-th DayOfWeek (0 is Sunday) of Month at Hour:Minute local time.
// Week 5 means the last one in the month.
type TransitionRule struct {
	Month     int `json:"month"`
	DayOfWeek int `json:"dayOfWeek"`
	Week      int `json:"week"`
	Hour      int `json:"hour"`
	Minute    int `json:"minute"`
}

func (r *TransitionRule) validate() error {
	switch {
	case r.Month < 1 || r.Month > 12:
		return fmt.Errorf("%w: month %d", ErrInvalidDescriptor, r.Month)
	case r.DayOfWeek < 0 || r.DayOfWeek > 6:
		return fmt.Errorf("%w: day of week %d", ErrInvalidDescriptor, r.DayOfWeek)
	case r.Week < 1 || r.Week > lastWeek:
		return fmt.Errorf("%w: week %d", ErrInvalidDescriptor, r.Week)
	case r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59:
		return fmt.Errorf("%w: time %02d:%02d", ErrInvalidDescriptor, r.Hour, r.Minute)
	}
	return nil
}

// localInstant returns the rule's date in year as a wall clock in UTC.
func (r *TransitionRule) localInstant(year int) time.Time {
	month := time.Month(r.Month)
	first := time.Date(year, month, 1, r.Hour, r.Minute, 0, 0, time.UTC)
	shift := (r.DayOfWeek - int(first.Weekday()) + 7) % 7
	d := first.AddDate(0, 0, shift+7*(r.Week-1))
	for d.Month() != month {
		d = d.AddDate(0, 0, -7)
	}
	return d
}

// BiasDescriptor describes a zone the Windows way: UTC = local + Bias, in
// minutes. Daylight is when DST starts, in standard local time; Standard
// is when it ends, in daylight local time. DaylightBias is added to Bias
// during DST and defaults to -60.
type BiasDescriptor struct {
	Standard     *TransitionRule `json:"standard,omitempty"`
	Daylight     *TransitionRule `json:"daylight,omitempty"`
	Bias         int             `json:"bias"`
	DaylightBias int             `json:"daylightBias,omitempty"`
}

func (d *BiasDescriptor) validate() error {
	if d.Bias < -14*60 || d.Bias > 12*60 {
		return fmt.Errorf("%w: bias %d", ErrInvalidDescriptor, d.Bias)
	}
	if (d.Standard == nil) != (d.Daylight == nil) {
		return fmt.Errorf("%w: standard and daylight rules must be given together", ErrInvalidDescriptor)
	}
	if d.Standard == nil {
		return nil
	}
	if err := d.Standard.validate(); err != nil {
		return err
	}
	return d.Daylight.validate()
}

// ZoneFromBias finds the zone the descriptor describes. Without rules the
// first zone at the offset in catalog order wins. With rules each
// candidate's own transitions for the current year must match exactly.
func (s *Service) ZoneFromBias(d BiasDescriptor) (zones.ZoneInfo, error) {
	if err := d.validate(); err != nil {
		return zones.ZoneInfo{}, err
	}

	offset := -d.Bias
	candidates := s.catalog.ZonesWithOffset(offset)
	if len(candidates) == 0 {
		return zones.ZoneInfo{}, fmt.Errorf("%w: no zone at offset %d", ErrNoMatch, offset)
	}
	if d.Standard == nil {
		return candidates[0], nil
	}

	daylightBias := d.DaylightBias
	if daylightBias == 0 {
		daylightBias = defaultDaylightBias
	}
	dstOffset := offset - daylightBias

	year := s.clock.Now().Year()
	start := d.Daylight.localInstant(year).Add(-time.Duration(offset) * time.Minute).Unix()
	end := d.Standard.localInstant(year).Add(-time.Duration(dstOffset) * time.Minute).Unix()

	for _, z := range candidates {
		rules := s.RulesFor(z.Name, []int{year})
		if len(rules) == 0 {
			continue
		}
		r := rules[0]
		if r.HasDSTChange && r.DSTStart == start && r.DSTEnd == end && r.DSTOffset == dstOffset*60 {
			log.Debug().Str("zone", z.Name).Int("bias", d.Bias).Msg("tzrules: bias descriptor matched")
			return z, nil
		}
	}
	return zones.ZoneInfo{}, fmt.Errorf("%w: bias %d in %d", ErrNoMatch, d.Bias, year)
}
