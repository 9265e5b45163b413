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
	"math"
	"testing"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/testing/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse_EUZoneV2(t *testing.T) {
	t.Parallel()

	data := fixtures.BuildTZif(fixtures.EUZone(3600, "CET", "CEST", 2024))
	ts := Parse(data)
	require.Len(t, ts, 2)

	assert.Equal(t, fixtures.EUStart(2024).Unix(), ts[0].Instant)
	assert.Equal(t, int32(7200), ts[0].UTCOffsetSeconds)
	assert.True(t, ts[0].IsDST)
	assert.Equal(t, "CEST", ts[0].Abbreviation)
	assert.Equal(t, 2024, ts[0].CalendarYear)

	assert.Equal(t, fixtures.EUEnd(2024).Unix(), ts[1].Instant)
	assert.Equal(t, int32(3600), ts[1].UTCOffsetSeconds)
	assert.False(t, ts[1].IsDST)
	assert.Equal(t, "CET", ts[1].Abbreviation)
}

func TestParse_KnownParis2024Instants(t *testing.T) {
	t.Parallel()

	data := fixtures.BuildTZif(fixtures.EUZone(3600, "CET", "CEST", 2024))
	ts := Parse(data)
	require.Len(t, ts, 2)

	assert.Equal(t, time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC).Unix(), ts[0].Instant)
	assert.Equal(t, time.Date(2024, 10, 27, 1, 0, 0, 0, time.UTC).Unix(), ts[1].Instant)
}

func TestParse_V1Only(t *testing.T) {
	t.Parallel()

	spec := fixtures.EUZone(0, "GMT", "BST", 2023, 2024)
	spec.Version = 0
	ts := Parse(fixtures.BuildTZif(spec))
	require.Len(t, ts, 4)
	assert.Equal(t, fixtures.EUStart(2023).Unix(), ts[0].Instant)
	assert.Equal(t, "BST", ts[0].Abbreviation)
}

func TestParse_Prefers64BitBlock(t *testing.T) {
	t.Parallel()

	// 2040 and later do not fit in the legacy block but must be present.
	far := time.Date(2040, 3, 25, 1, 0, 0, 0, time.UTC).Unix() + (1 << 32)
	spec := fixtures.TZifSpec{
		Version: '3',
		Types: []fixtures.TZifType{
			{Abbr: "STD", Offset: 0},
			{Abbr: "DST", Offset: 3600, IsDST: true},
		},
		Transitions: []fixtures.TZifTransition{
			{At: 1000, Type: 1},
			{At: far, Type: 0},
		},
		Footer: "STD0DST",
	}
	ts := Parse(fixtures.BuildTZif(spec))
	require.Len(t, ts, 2)
	assert.Equal(t, far, ts[1].Instant)
}

func TestParse_LeapSecondsSkipped(t *testing.T) {
	t.Parallel()

	spec := fixtures.EUZone(3600, "CET", "CEST", 2024)
	spec.LeapCount = 3
	ts := Parse(fixtures.BuildTZif(spec))
	require.Len(t, ts, 2)
	assert.Equal(t, "CET", ts[1].Abbreviation)
}

func TestParse_FixedOffsetGetsSyntheticTransition(t *testing.T) {
	t.Parallel()

	ts := Parse(fixtures.BuildTZif(fixtures.FixedZone(19800, "IST")))
	require.Len(t, ts, 1)
	assert.Equal(t, MinInstant, ts[0].Instant)
	assert.Equal(t, int64(math.MinInt32), ts[0].Instant)
	assert.Equal(t, int32(19800), ts[0].UTCOffsetSeconds)
	assert.Equal(t, "IST", ts[0].Abbreviation)
	assert.False(t, ts[0].IsDST)
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	good := fixtures.BuildTZif(fixtures.EUZone(3600, "CET", "CEST", 2024))

	badMagic := append([]byte{}, good...)
	copy(badMagic, "TZiX")

	badIndex := fixtures.BuildTZif(fixtures.TZifSpec{
		Version:     0,
		Types:       []fixtures.TZifType{{Abbr: "UTC"}},
		Transitions: []fixtures.TZifTransition{{At: 10, Type: 4}},
	})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil", data: nil},
		{name: "empty", data: []byte{}},
		{name: "magic only", data: []byte("TZif")},
		{name: "bad magic", data: badMagic},
		{name: "truncated header", data: good[:30]},
		{name: "truncated body", data: good[:len(good)/2]},
		{name: "type index out of range", data: badIndex},
		{name: "garbage", data: []byte("this is not a zoneinfo file at all, sorry")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := Parse(tt.data)
			assert.NotNil(t, ts)
			assert.Empty(t, ts)
		})
	}
}

func TestRepairOrder(t *testing.T) {
	t.Parallel()

	mk := func(instants ...int64) []Transition {
		ts := make([]Transition, len(instants))
		for i, in := range instants {
			ts[i] = Transition{Instant: in}
		}
		return ts
	}
	instants := func(ts []Transition) []int64 {
		out := make([]int64, len(ts))
		for i, tr := range ts {
			out[i] = tr.Instant
		}
		return out
	}

	tests := []struct {
		name     string
		in       []Transition
		want     []int64
		unsigned bool
	}{
		{name: "ordered", in: mk(1, 2, 3), want: []int64{1, 2, 3}},
		{name: "signed truncates", in: mk(1, 5, 2, 3), want: []int64{1, 5}},
		{name: "unsigned drops prefix", in: mk(1, 5, 2, 3), want: []int64{2, 3}, unsigned: true},
		{name: "unsigned multiple regressions", in: mk(9, 1, 8, 2, 3), want: []int64{2, 3}, unsigned: true},
		{name: "duplicate instants truncate", in: mk(1, 1, 2), want: []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := repairOrder(tt.in, Options{UnsignedTimes: tt.unsigned})
			assert.Equal(t, tt.want, instants(got))
		})
	}
}

func TestParseWithOptions_UnsignedWrap(t *testing.T) {
	t.Parallel()

	spec := fixtures.TZifSpec{
		Version: '2',
		Types:   []fixtures.TZifType{{Abbr: "A"}, {Abbr: "B", Offset: 60}},
		Transitions: []fixtures.TZifTransition{
			{At: 500, Type: 0},
			{At: -100, Type: 1},
			{At: 200, Type: 0},
		},
	}
	data := fixtures.BuildTZif(spec)

	signed := Parse(data)
	require.Len(t, signed, 1)
	assert.Equal(t, int64(500), signed[0].Instant)

	unsigned := ParseWithOptions(data, Options{UnsignedTimes: true})
	require.Len(t, unsigned, 2)
	assert.Equal(t, int64(-100), unsigned[0].Instant)
}

// TestPropertyParseNeverPanics verifies arbitrary input gives a list, never a panic.
func TestPropertyParseNeverPanics(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		if rapid.Bool().Draw(t, "magic") && len(data) >= 4 {
			copy(data, "TZif")
		}
		ts := Parse(data)
		if ts == nil {
			t.Fatal("Parse returned nil")
		}
	})
}

// TestPropertyTruncationIsEmpty verifies any strict prefix of a valid file parses to nothing.
func TestPropertyTruncationIsEmpty(t *testing.T) {
	t.Parallel()
	data := fixtures.BuildTZif(fixtures.EUZone(3600, "CET", "CEST", fixtures.FixtureYears...))
	rapid.Check(t, func(t *rapid.T) {
		// the footer is not needed for decoding, so cut before it
		n := rapid.IntRange(0, len(data)-len("\n\n")-1).Draw(t, "n")
		if ts := Parse(data[:n]); len(ts) != 0 {
			t.Fatalf("prefix of %d bytes parsed to %d transitions", n, len(ts))
		}
	})
}

// TestPropertyOutputAscending verifies results are strictly ascending.
func TestPropertyOutputAscending(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		spec := fixtures.TZifSpec{
			Version: '2',
			Types:   []fixtures.TZifType{{Abbr: "A"}, {Abbr: "B", Offset: 3600, IsDST: true}},
		}
		for i := range n {
			spec.Transitions = append(spec.Transitions, fixtures.TZifTransition{
				At:   rapid.Int64Range(-1<<40, 1<<40).Draw(t, "at"),
				Type: i % 2,
			})
		}
		unsigned := rapid.Bool().Draw(t, "unsigned")
		ts := ParseWithOptions(fixtures.BuildTZif(spec), Options{UnsignedTimes: unsigned})
		for i := 1; i < len(ts); i++ {
			if ts[i].Instant <= ts[i-1].Instant {
				t.Fatalf("not ascending at %d: %d <= %d", i, ts[i].Instant, ts[i-1].Instant)
			}
		}
	})
}
