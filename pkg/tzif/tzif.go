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

// Package tzif parses binary zoneinfo (TZif) rule files into ordered lists of
// UTC transitions.
//
// Parsing never fails loudly: a missing, truncated or otherwise malformed
// file produces an empty list, which callers treat as "unknown zone".
// See tzfile(5) and RFC 8536 for the format.
package tzif

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// MinInstant is the instant given to the synthetic transition of a zone
// that has local time types but no transitions (a permanently fixed offset).
// It is the earliest instant representable by a legacy 32-bit time_t.
const MinInstant int64 = math.MinInt32

const (
	magic      = "TZif"
	headerSize = 44
)

var (
	errBadMagic  = errors.New("tzif: bad magic")
	errTruncated = errors.New("tzif: truncated data")
	errBadIndex  = errors.New("tzif: local time type index out of range")
	errNoTypes   = errors.New("tzif: no local time types")
)

// Transition is a single change of local time rules, ordered by Instant.
type Transition struct {
	Abbreviation     string
	Instant          int64
	UTCOffsetSeconds int32
	CalendarYear     int
	IsDST            bool
}

// Options tune how inconsistent transition data is repaired.
type Options struct {
	// UnsignedTimes treats the host time_t as unsigned. A regression in the
	// transition list then means the leading entries wrapped around, so the
	// corrupt prefix is dropped instead of truncating the tail.
	UnsignedTimes bool
}

// Parse decodes TZif data assuming a signed time_t host.
func Parse(data []byte) []Transition {
	return ParseWithOptions(data, Options{})
}

// ParseWithOptions decodes TZif data. It returns an empty slice if the data
// is not a well-formed TZif file. Slim v2+ files stop listing transitions
// once the footer rule takes over; those are generated from the footer up
// to FooterHorizonYear.
func ParseWithOptions(data []byte, opts Options) []Transition {
	ts, tz, err := decode(data)
	if err != nil {
		return []Transition{}
	}
	ts = repairOrder(ts, opts)
	if rule, ok := parsePosixTZ(tz); ok {
		ts = rule.extend(ts, FooterHorizonYear)
	}
	return ts
}

type header struct {
	version  byte
	isUTCCnt int
	isStdCnt int
	leapCnt  int
	timeCnt  int
	typeCnt  int
	charCnt  int
}

// blockSize is the byte length of a data block following h, with timeSize
// bytes per transition time and leap second occurrence.
func (h header) blockSize(timeSize int) int {
	return h.timeCnt*timeSize +
		h.timeCnt +
		h.typeCnt*6 +
		h.charCnt +
		h.leapCnt*(timeSize+4) +
		h.isStdCnt +
		h.isUTCCnt
}

type localType struct {
	offset int32
	isDST  bool
	abbrIx uint8
}

type reader struct {
	p []byte
}

func (r *reader) read(n int) ([]byte, error) {
	if n < 0 || len(r.p) < n {
		r.p = nil
		return nil, errTruncated
	}
	b := r.p[:n]
	r.p = r.p[n:]
	return b, nil
}

func readHeader(r *reader) (header, error) {
	b, err := r.read(headerSize)
	if err != nil {
		return header{}, err
	}
	if string(b[:4]) != magic {
		return header{}, errBadMagic
	}
	counts := make([]int, 6)
	for i := range counts {
		n := binary.BigEndian.Uint32(b[20+i*4:])
		if n > math.MaxInt32 {
			return header{}, errTruncated
		}
		counts[i] = int(n)
	}
	return header{
		version:  b[4],
		isUTCCnt: counts[0],
		isStdCnt: counts[1],
		leapCnt:  counts[2],
		timeCnt:  counts[3],
		typeCnt:  counts[4],
		charCnt:  counts[5],
	}, nil
}

func decode(data []byte) ([]Transition, string, error) {
	r := &reader{p: data}

	h, err := readHeader(r)
	if err != nil {
		return nil, "", err
	}

	// The legacy 32-bit block is always present. Version 2+ files follow it
	// with a second header and a 64-bit block, which supersedes it; slim
	// files may carry an empty legacy block, so it is only decoded for v1.
	block, err := r.read(h.blockSize(4))
	if err != nil {
		return nil, "", err
	}
	if h.version < '2' {
		ts, err := decodeBlock(h, block, 4)
		return ts, "", err
	}

	h64, err := readHeader(r)
	if err != nil {
		return nil, "", err
	}
	block64, err := r.read(h64.blockSize(8))
	if err != nil {
		return nil, "", err
	}
	ts, err := decodeBlock(h64, block64, 8)
	return ts, footer(r.p), err
}

// footer returns the POSIX TZ string between the newlines that end a v2+
// file, or "" when it is missing or cut short.
func footer(p []byte) string {
	if len(p) < 2 || p[0] != '\n' {
		return ""
	}
	end := bytes.IndexByte(p[1:], '\n')
	if end < 0 {
		return ""
	}
	return string(p[1 : end+1])
}

func decodeBlock(h header, block []byte, timeSize int) ([]Transition, error) {
	r := &reader{p: block}

	rawTimes, err := r.read(h.timeCnt * timeSize)
	if err != nil {
		return nil, err
	}
	idx, err := r.read(h.timeCnt)
	if err != nil {
		return nil, err
	}
	rawTypes, err := r.read(h.typeCnt * 6)
	if err != nil {
		return nil, err
	}
	abbrevs, err := r.read(h.charCnt)
	if err != nil {
		return nil, err
	}
	// leap seconds, standard/wall and UT/local indicators are not used
	if _, err = r.read(h.leapCnt*(timeSize+4) + h.isStdCnt + h.isUTCCnt); err != nil {
		return nil, err
	}

	if h.typeCnt == 0 {
		return nil, errNoTypes
	}

	types := make([]localType, h.typeCnt)
	for i := range types {
		b := rawTypes[i*6 : i*6+6]
		types[i] = localType{
			offset: int32(binary.BigEndian.Uint32(b)), //nolint:gosec // two's complement by definition
			isDST:  b[4] != 0,
			abbrIx: b[5],
		}
	}

	if h.timeCnt == 0 {
		return []Transition{newTransition(MinInstant, types[0], abbrevs)}, nil
	}

	ts := make([]Transition, 0, h.timeCnt)
	for i := range h.timeCnt {
		var instant int64
		if timeSize == 8 {
			instant = int64(binary.BigEndian.Uint64(rawTimes[i*8:])) //nolint:gosec // two's complement by definition
		} else {
			instant = int64(int32(binary.BigEndian.Uint32(rawTimes[i*4:]))) //nolint:gosec // two's complement by definition
		}
		ti := int(idx[i])
		if ti >= len(types) {
			return nil, errBadIndex
		}
		ts = append(ts, newTransition(instant, types[ti], abbrevs))
	}
	return ts, nil
}

func newTransition(instant int64, lt localType, abbrevs []byte) Transition {
	return Transition{
		Instant:          instant,
		UTCOffsetSeconds: lt.offset,
		IsDST:            lt.isDST,
		Abbreviation:     abbreviation(abbrevs, int(lt.abbrIx)),
		CalendarYear:     calendarYear(instant, lt.offset),
	}
}

// calendarYear is the local year at instant for a zone offset east of UTC.
func calendarYear(instant int64, offset int32) int {
	return time.Unix(instant+int64(offset), 0).UTC().Year()
}

// abbreviation returns the NUL terminated string starting at i.
func abbreviation(buf []byte, i int) string {
	if i >= len(buf) {
		return ""
	}
	for j := i; j < len(buf); j++ {
		if buf[j] == 0 {
			return string(buf[i:j])
		}
	}
	return string(buf[i:])
}

// repairOrder handles files whose transition instants are not ascending,
// which happens when data written for one time_t signedness is read on a
// host with the other.
func repairOrder(ts []Transition, opts Options) []Transition {
	for i := 1; i < len(ts); i++ {
		if ts[i].Instant > ts[i-1].Instant {
			continue
		}
		if !opts.UnsignedTimes {
			return ts[:i]
		}
		// drop everything before the last regression
		last := i
		for j := i + 1; j < len(ts); j++ {
			if ts[j].Instant <= ts[j-1].Instant {
				last = j
			}
		}
		return ts[last:]
	}
	return ts
}
