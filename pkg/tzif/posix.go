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

package tzif

import (
	"strconv"
	"strings"
	"time"
)

// FooterHorizonYear is the last year transitions are generated for from a
// file's TZ footer. zic writes explicit transitions up to the same year
// when it builds "fat" files.
const FooterHorizonYear = 2037

type ruleKind int

const (
	ruleJulian       ruleKind = iota // Jn: 1-365, February 29 never counted
	ruleDayOfYear                    // n: 0-365, February 29 counted
	ruleMonthWeekDay                 // Mm.w.d: week 5 is the last one
)

// dateRule is one side of a TZ string's daylight saving rule. secs is the
// local wall time of the change and may be negative or past midnight.
type dateRule struct {
	kind  ruleKind
	day   int
	week  int
	month int
	secs  int
}

// posixTZ is a TZ string with daylight saving rules, as found in the
// footer of v2+ files, e.g. "CET-1CEST,M3.5.0,M10.5.0/3". Offsets are
// seconds east of UTC.
type posixTZ struct {
	stdName   string
	dstName   string
	stdOffset int
	dstOffset int
	start     dateRule
	end       dateRule
}

type tzParser struct {
	s string
}

func (p *tzParser) skip(c byte) bool {
	if p.s == "" || p.s[0] != c {
		return false
	}
	p.s = p.s[1:]
	return true
}

func (p *tzParser) name() (string, bool) {
	if p.skip('<') {
		end := strings.IndexByte(p.s, '>')
		if end <= 0 {
			return "", false
		}
		n := p.s[:end]
		p.s = p.s[end+1:]
		return n, true
	}
	i := 0
	for i < len(p.s) && isAlpha(p.s[i]) {
		i++
	}
	if i < 3 {
		return "", false
	}
	n := p.s[:i]
	p.s = p.s[i:]
	return n, true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (p *tzParser) num() (int, bool) {
	i := 0
	for i < len(p.s) && p.s[i] >= '0' && p.s[i] <= '9' {
		i++
	}
	if i == 0 || i > 3 {
		return 0, false
	}
	n, err := strconv.Atoi(p.s[:i])
	if err != nil {
		return 0, false
	}
	p.s = p.s[i:]
	return n, true
}

// clock reads [+-]hh[:mm[:ss]] as seconds.
func (p *tzParser) clock() (int, bool) {
	sign := 1
	if p.skip('-') {
		sign = -1
	} else {
		p.skip('+')
	}
	h, ok := p.num()
	if !ok || h > 167 {
		return 0, false
	}
	secs := h * 3600
	for _, unit := range []int{60, 1} {
		if !p.skip(':') {
			break
		}
		v, ok := p.num()
		if !ok || v > 59 {
			return 0, false
		}
		secs += v * unit
	}
	return sign * secs, true
}

func (p *tzParser) field(lo, hi int) (int, bool) {
	v, ok := p.num()
	return v, ok && v >= lo && v <= hi
}

func (p *tzParser) rule() (dateRule, bool) {
	var r dateRule
	var ok bool
	switch {
	case p.skip('J'):
		r.kind = ruleJulian
		if r.day, ok = p.field(1, 365); !ok {
			return r, false
		}
	case p.skip('M'):
		r.kind = ruleMonthWeekDay
		if r.month, ok = p.field(1, 12); !ok || !p.skip('.') {
			return r, false
		}
		if r.week, ok = p.field(1, 5); !ok || !p.skip('.') {
			return r, false
		}
		if r.day, ok = p.field(0, 6); !ok {
			return r, false
		}
	default:
		r.kind = ruleDayOfYear
		if r.day, ok = p.field(0, 365); !ok {
			return r, false
		}
	}

	r.secs = 2 * 3600
	if p.skip('/') {
		if r.secs, ok = p.clock(); !ok {
			return r, false
		}
	}
	return r, true
}

// parsePosixTZ parses a TZ string. ok is false unless the string is well
// formed and has daylight saving rules that change during the year: a
// fixed zone or a permanent DST footer adds nothing past the last explicit
// transition.
func parsePosixTZ(s string) (posixTZ, bool) {
	p := &tzParser{s: s}
	var tz posixTZ
	var ok bool

	if tz.stdName, ok = p.name(); !ok {
		return tz, false
	}
	off, ok := p.clock()
	if !ok {
		return tz, false
	}
	tz.stdOffset = -off // TZ strings count west of UTC

	if p.s == "" {
		return tz, false
	}
	if tz.dstName, ok = p.name(); !ok {
		return tz, false
	}
	tz.dstOffset = tz.stdOffset + 3600
	if p.s != "" && p.s[0] != ',' {
		if off, ok = p.clock(); !ok {
			return tz, false
		}
		tz.dstOffset = -off
	}

	if !p.skip(',') {
		return tz, false
	}
	if tz.start, ok = p.rule(); !ok || !p.skip(',') {
		return tz, false
	}
	if tz.end, ok = p.rule(); !ok || p.s != "" {
		return tz, false
	}
	return tz, !tz.allYearDST()
}

// allYearDST matches the "0/0,J365/25" form zic uses for zones that stay on
// daylight time.
func (tz posixTZ) allYearDST() bool {
	return tz.start.kind == ruleDayOfYear && tz.start.day == 0 && tz.start.secs == 0 &&
		tz.end.kind == ruleJulian && tz.end.day == 365 &&
		tz.end.secs >= 24*3600+tz.dstOffset-tz.stdOffset
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// instant is the unix time of the change in year, for a zone whose offset
// before the change is offset seconds east of UTC.
func (r dateRule) instant(year, offset int) int64 {
	var day time.Time
	switch r.kind {
	case ruleJulian:
		d := r.day - 1
		if isLeap(year) && r.day >= 60 {
			d++
		}
		day = time.Date(year, time.January, 1+d, 0, 0, 0, 0, time.UTC)
	case ruleDayOfYear:
		day = time.Date(year, time.January, 1+r.day, 0, 0, 0, 0, time.UTC)
	case ruleMonthWeekDay:
		month := time.Month(r.month)
		first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		d := 1 + (r.day-int(first.Weekday())+7)%7 + (r.week-1)*7
		days := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
		for d > days {
			d -= 7
		}
		day = time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	}
	return day.Unix() + int64(r.secs) - int64(offset)
}

// transitionsIn returns the year's two changes in instant order. Southern
// hemisphere rules end daylight time before they start it.
func (tz posixTZ) transitionsIn(year int) [2]Transition {
	dst := int32(tz.dstOffset) //nolint:gosec // bounded by the clock parser
	std := int32(tz.stdOffset) //nolint:gosec // bounded by the clock parser

	start := tz.start.instant(year, tz.stdOffset)
	end := tz.end.instant(year, tz.dstOffset)
	on := Transition{
		Instant:          start,
		UTCOffsetSeconds: dst,
		IsDST:            true,
		Abbreviation:     tz.dstName,
		CalendarYear:     calendarYear(start, dst),
	}
	off := Transition{
		Instant:          end,
		UTCOffsetSeconds: std,
		Abbreviation:     tz.stdName,
		CalendarYear:     calendarYear(end, std),
	}
	if end < start {
		return [2]Transition{off, on}
	}
	return [2]Transition{on, off}
}

// extend appends the rule's transitions after the last one in ts, from the
// last transition's year through untilYear. A zone with only the synthetic
// transition starts at the epoch.
func (tz posixTZ) extend(ts []Transition, untilYear int) []Transition {
	if len(ts) == 0 {
		return ts
	}
	from := max(ts[len(ts)-1].CalendarYear, 1900)
	if ts[len(ts)-1].Instant == MinInstant {
		from = 1970
	}
	for y := from; y <= untilYear; y++ {
		for _, tr := range tz.transitionsIn(y) {
			if tr.Instant > ts[len(ts)-1].Instant {
				ts = append(ts, tr)
			}
		}
	}
	return ts
}
