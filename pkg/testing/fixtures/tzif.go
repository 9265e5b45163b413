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

package fixtures

import (
	"bytes"
	"encoding/binary"
	"math"
	"path"
	"time"

	"github.com/spf13/afero"
)

// ZoneinfoRoot is the directory NewZoneinfoFs populates.
const ZoneinfoRoot = "/usr/share/zoneinfo"

// TZifType is a local time type in a generated rule file.
type TZifType struct {
	Abbr   string
	Offset int32
	IsDST  bool
}

// TZifTransition switches to Types[Type] at unix time At.
type TZifTransition struct {
	At   int64
	Type int
}

// TZifSpec describes a rule file to generate.
type TZifSpec struct {
	Footer      string
	Types       []TZifType
	Transitions []TZifTransition
	LeapCount   int
	Version     byte
}

// BuildTZif encodes spec as TZif data. Version 0 produces a v1 file with
// only the 32-bit block, anything else also writes the 64-bit block.
func BuildTZif(spec TZifSpec) []byte {
	var buf bytes.Buffer

	var legacy []TZifTransition
	for _, tr := range spec.Transitions {
		if tr.At >= math.MinInt32 && tr.At <= math.MaxInt32 {
			legacy = append(legacy, tr)
		}
	}

	writeBlock(&buf, spec, legacy, 4)
	if spec.Version == 0 {
		return buf.Bytes()
	}
	writeBlock(&buf, spec, spec.Transitions, 8)
	buf.WriteString("\n" + spec.Footer + "\n")
	return buf.Bytes()
}

func writeBlock(buf *bytes.Buffer, spec TZifSpec, trs []TZifTransition, timeSize int) {
	var abbrevs []byte
	abbrIx := make([]int, len(spec.Types))
	for i, t := range spec.Types {
		if j := bytes.Index(abbrevs, append([]byte(t.Abbr), 0)); j >= 0 {
			abbrIx[i] = j
			continue
		}
		abbrIx[i] = len(abbrevs)
		abbrevs = append(abbrevs, t.Abbr...)
		abbrevs = append(abbrevs, 0)
	}

	buf.WriteString("TZif")
	buf.WriteByte(spec.Version)
	buf.Write(make([]byte, 15))
	for _, n := range []int{
		0, // UT/local indicators
		0, // standard/wall indicators
		spec.LeapCount,
		len(trs),
		len(spec.Types),
		len(abbrevs),
	} {
		_ = binary.Write(buf, binary.BigEndian, uint32(n)) //nolint:gosec // test sizes are small
	}

	for _, tr := range trs {
		if timeSize == 8 {
			_ = binary.Write(buf, binary.BigEndian, tr.At)
		} else {
			_ = binary.Write(buf, binary.BigEndian, int32(tr.At)) //nolint:gosec // filtered to int32 range
		}
	}
	for _, tr := range trs {
		buf.WriteByte(byte(tr.Type))
	}
	for i, t := range spec.Types {
		_ = binary.Write(buf, binary.BigEndian, t.Offset)
		if t.IsDST {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteByte(byte(abbrIx[i]))
	}
	buf.Write(abbrevs)
	for range spec.LeapCount {
		buf.Write(make([]byte, timeSize+4))
	}
}

// lastSunday returns the last Sunday of month in year at hour:00 UTC.
func lastSunday(year int, month time.Month, hour int) time.Time {
	t := time.Date(year, month+1, 1, hour, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for t.Weekday() != time.Sunday {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

// nthSunday returns the n-th Sunday of month in year at the given UTC clock.
func nthSunday(year int, month time.Month, n int, hour int) time.Time {
	t := time.Date(year, month, 1, hour, 0, 0, 0, time.UTC)
	for t.Weekday() != time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t.AddDate(0, 0, 7*(n-1))
}

// EUStart is the EU summer time start for year (last Sunday of March, 01:00 UTC).
func EUStart(year int) time.Time {
	return lastSunday(year, time.March, 1)
}

// EUEnd is the EU summer time end for year (last Sunday of October, 01:00 UTC).
func EUEnd(year int) time.Time {
	return lastSunday(year, time.October, 1)
}

// EUZone builds a zone following EU summer time rules for the given years.
func EUZone(stdOffset int32, stdAbbr, dstAbbr string, years ...int) TZifSpec {
	spec := TZifSpec{
		Version: '2',
		Types: []TZifType{
			{Abbr: stdAbbr, Offset: stdOffset},
			{Abbr: dstAbbr, Offset: stdOffset + 3600, IsDST: true},
		},
	}
	for _, y := range years {
		spec.Transitions = append(spec.Transitions,
			TZifTransition{At: EUStart(y).Unix(), Type: 1},
			TZifTransition{At: EUEnd(y).Unix(), Type: 0},
		)
	}
	return spec
}

// USStart is the US daylight time start (second Sunday of March, 02:00
// local standard time) for a zone with the given standard offset in hours.
func USStart(year int, stdHours int) time.Time {
	return nthSunday(year, time.March, 2, 2-stdHours)
}

// USEnd is the US daylight time end (first Sunday of November, 02:00 local
// daylight time) for a zone with the given standard offset in hours.
func USEnd(year int, stdHours int) time.Time {
	return nthSunday(year, time.November, 1, 2-(stdHours+1))
}

// USZone builds a zone following US daylight time rules for the given years.
func USZone(stdHours int, stdAbbr, dstAbbr string, years ...int) TZifSpec {
	std := int32(stdHours * 3600) //nolint:gosec // small test values
	spec := TZifSpec{
		Version: '2',
		Types: []TZifType{
			{Abbr: stdAbbr, Offset: std},
			{Abbr: dstAbbr, Offset: std + 3600, IsDST: true},
		},
	}
	for _, y := range years {
		spec.Transitions = append(spec.Transitions,
			TZifTransition{At: USStart(y, stdHours).Unix(), Type: 1},
			TZifTransition{At: USEnd(y, stdHours).Unix(), Type: 0},
		)
	}
	return spec
}

// FixedZone builds a zone with a single local time type and no transitions.
func FixedZone(offset int32, abbr string) TZifSpec {
	return TZifSpec{
		Version: '2',
		Types:   []TZifType{{Abbr: abbr, Offset: offset}},
	}
}

// FixtureYears are the years covered by the generated DST zones.
var FixtureYears = []int{2022, 2023, 2024, 2025, 2026, 2027}

// NewZoneinfoFs returns an in-memory filesystem holding generated rule files
// for a handful of real zones under ZoneinfoRoot.
func NewZoneinfoFs() afero.Fs {
	fs := afero.NewMemMapFs()
	zones := map[string]TZifSpec{
		"Europe/Paris":     EUZone(3600, "CET", "CEST", FixtureYears...),
		"Europe/Berlin":    EUZone(3600, "CET", "CEST", FixtureYears...),
		"Europe/Madrid":    EUZone(3600, "CET", "CEST", FixtureYears...),
		"Europe/London":    EUZone(0, "GMT", "BST", FixtureYears...),
		"Europe/Athens":    EUZone(7200, "EET", "EEST", FixtureYears...),
		"America/New_York": USZone(-5, "EST", "EDT", FixtureYears...),
		"America/Chicago":  USZone(-6, "CST", "CDT", FixtureYears...),
		"Africa/Lagos":     FixedZone(3600, "WAT"),
		"Asia/Kolkata":     FixedZone(19800, "IST"),
		"Asia/Tokyo":       FixedZone(32400, "JST"),
		"Etc/UTC":          FixedZone(0, "UTC"),
		"Etc/GMT-1":        FixedZone(3600, "+01"),
	}
	for name, spec := range zones {
		p := path.Join(ZoneinfoRoot, name)
		_ = fs.MkdirAll(path.Dir(p), 0o755)
		_ = afero.WriteFile(fs, p, BuildTZif(spec), 0o644)
	}
	return fs
}
