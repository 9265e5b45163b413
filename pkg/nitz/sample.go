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

// Package nitz turns cellular network time and zone samples into system
// time and time zone changes, falling back to NTP when the network does not
// supply a usable time.
package nitz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrMalformedSample = errors.New("malformed NITZ string")

// Mobile country codes with known bad network data.
const (
	mccIndiaA = 404
	mccIndiaB = 405
	mccBrazil = 724
)

// Sample is one network time report. OffsetMinutes is the zone's standard
// offset, with any DST adjustment already removed. ReceivedAt is the system
// time the sample arrived and is kept in step with the system clock.
type Sample struct {
	ReceivedAt    time.Time `json:"receivedAt"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	Day           int       `json:"day"`
	Hour          int       `json:"hour"`
	Minute        int       `json:"minute"`
	Second        int       `json:"second"`
	OffsetMinutes int       `json:"offsetMinutes"`
	MCC           int       `json:"mcc"`
	MNC           int       `json:"mnc"`
	DST           bool      `json:"dst"`
	TimeValid     bool      `json:"timeValid"`
	ZoneValid     bool      `json:"zoneValid"`
	DSTValid      bool      `json:"dstValid"`
}

// UTC is the network time carried by the sample. NITZ times are universal
// time, the offset only describes the zone.
func (s *Sample) UTC() time.Time {
	return time.Date(s.Year, time.Month(s.Month), s.Day, s.Hour, s.Minute, s.Second, 0, time.UTC)
}

// fieldsValid reports whether the calendar fields name a real instant.
func (s *Sample) fieldsValid() bool {
	if s.Year < 1970 || s.Month < 1 || s.Month > 12 || s.Day < 1 || s.Day > 31 {
		return false
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 || s.Second < 0 || s.Second > 60 {
		return false
	}
	// time.Date normalises out of range days, so Feb 31 would roll over.
	return s.UTC().Day() == s.Day
}

// ParseNITZ decodes the modem string form "yy/mm/dd,hh:mm:ss±tz[,dt]" where
// tz is the total offset in quarter hours and dt the DST adjustment in
// hours. A string without dt has no valid DST information.
func ParseNITZ(raw string, mcc, mnc int, receivedAt time.Time) (Sample, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) < 2 || len(parts) > 3 {
		return Sample{}, fmt.Errorf("%w: %q", ErrMalformedSample, raw)
	}

	date, err := splitInts(parts[0], "/", 3)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: date %q", ErrMalformedSample, parts[0])
	}

	clock := parts[1]
	sign := strings.IndexAny(clock, "+-")
	if sign < 0 {
		return Sample{}, fmt.Errorf("%w: missing zone offset in %q", ErrMalformedSample, clock)
	}
	hms, err := splitInts(clock[:sign], ":", 3)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: time %q", ErrMalformedSample, clock[:sign])
	}
	quarters, err := strconv.Atoi(clock[sign:])
	if err != nil {
		return Sample{}, fmt.Errorf("%w: zone offset %q", ErrMalformedSample, clock[sign:])
	}

	s := Sample{
		Year:       2000 + date[0],
		Month:      date[1],
		Day:        date[2],
		Hour:       hms[0],
		Minute:     hms[1],
		Second:     hms[2],
		MCC:        mcc,
		MNC:        mnc,
		ReceivedAt: receivedAt,
		ZoneValid:  true,
	}

	dstHours := 0
	if len(parts) == 3 {
		dstHours, err = strconv.Atoi(parts[2])
		if err != nil || dstHours < 0 || dstHours > 2 {
			return Sample{}, fmt.Errorf("%w: dst %q", ErrMalformedSample, parts[2])
		}
		s.DSTValid = true
		s.DST = dstHours > 0
	}
	s.OffsetMinutes = quarters*15 - dstHours*60
	s.TimeValid = s.fieldsValid()

	if !s.TimeValid {
		return s, fmt.Errorf("%w: %q is not a valid time", ErrMalformedSample, raw)
	}
	return s, nil
}

func splitInts(s, sep string, n int) ([]int, error) {
	fields := strings.Split(s, sep)
	if len(fields) != n {
		return nil, ErrMalformedSample
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

// correction is a fix for networks known to send bad zone data.
type correction struct {
	apply func(s Sample) (Sample, bool)
	name  string
}

var corrections = []correction{
	{
		// Some Indian networks send +05:00 or +06:00 instead of +05:30.
		name: "india-half-hour",
		apply: func(s Sample) (Sample, bool) {
			if s.MCC != mccIndiaA && s.MCC != mccIndiaB {
				return s, false
			}
			if s.OffsetMinutes != 300 && s.OffsetMinutes != 360 {
				return s, false
			}
			s.OffsetMinutes = 330
			return s, true
		},
	},
	{
		// Brazil dropped DST in 2019. Networks still flag it while sending the
		// correct total, which leaves the standard offset an hour west.
		name: "brazil-no-dst",
		apply: func(s Sample) (Sample, bool) {
			if s.MCC != mccBrazil || !s.DST {
				return s, false
			}
			s.DST = false
			s.OffsetMinutes += 60
			return s, true
		},
	},
}

// applyCorrections returns the corrected sample and the names of the rules
// that changed it.
func applyCorrections(s Sample) (Sample, []string) {
	var applied []string
	for _, c := range corrections {
		var ok bool
		if s, ok = c.apply(s); ok {
			applied = append(applied, c.name)
		}
	}
	return s, applied
}
