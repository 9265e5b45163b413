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

package nitz

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseNITZ(t *testing.T) {
	t.Parallel()

	received := time.Date(2024, 6, 1, 12, 0, 5, 0, time.UTC)

	tests := []struct {
		name     string
		raw      string
		wantUTC  time.Time
		offset   int
		dst      bool
		dstValid bool
	}{
		{
			name:    "paris summer",
			raw:     "24/06/01,12:00:00+8,1",
			wantUTC: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			offset:  60, dst: true, dstValid: true,
		},
		{
			name:    "no dst field",
			raw:     "24/01/15,08:30:00+22",
			wantUTC: time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC),
			offset:  330,
		},
		{
			name:    "western hemisphere with dst",
			raw:     "24/06/01,16:00:00-16,1",
			wantUTC: time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC),
			offset:  -300, dst: true, dstValid: true,
		},
		{
			name:    "explicit no dst",
			raw:     " 24/12/31,23:59:59+0,0 ",
			wantUTC: time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			offset:  0, dstValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := ParseNITZ(tt.raw, 208, 1, received)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUTC, s.UTC())
			assert.Equal(t, tt.offset, s.OffsetMinutes)
			assert.Equal(t, tt.dst, s.DST)
			assert.Equal(t, tt.dstValid, s.DSTValid)
			assert.True(t, s.TimeValid)
			assert.True(t, s.ZoneValid)
			assert.Equal(t, 208, s.MCC)
			assert.Equal(t, 1, s.MNC)
			assert.Equal(t, received, s.ReceivedAt)
		})
	}
}

func TestParseNITZ_Malformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"24/06/01",
		"24/06,12:00:00+8",
		"24/06/01,12:00+8",
		"24/06/01,12:00:00",
		"24/06/01,12:00:00+x",
		"24/06/01,12:00:00+8,3",
		"24/06/01,12:00:00+8,1,0",
		"24/02/31,12:00:00+8",
		"24/13/01,12:00:00+8",
		"24/06/01,25:00:00+8",
	} {
		_, err := ParseNITZ(raw, 0, 0, time.Time{})
		require.ErrorIs(t, err, ErrMalformedSample, raw)
	}
}

func TestApplyCorrections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		in         Sample
		wantRules  []string
		wantOffset int
		wantDST    bool
	}{
		{
			name:       "india whole hour below",
			in:         Sample{MCC: 404, OffsetMinutes: 300},
			wantOffset: 330,
			wantRules:  []string{"india-half-hour"},
		},
		{
			name:       "india whole hour above",
			in:         Sample{MCC: 405, OffsetMinutes: 360},
			wantOffset: 330,
			wantRules:  []string{"india-half-hour"},
		},
		{
			name:       "india already correct",
			in:         Sample{MCC: 404, OffsetMinutes: 330},
			wantOffset: 330,
		},
		{
			name:       "other country at india offset",
			in:         Sample{MCC: 470, OffsetMinutes: 360},
			wantOffset: 360,
		},
		{
			name:       "brazil stale dst flag",
			in:         Sample{MCC: 724, OffsetMinutes: -240, DST: true},
			wantOffset: -180,
			wantRules:  []string{"brazil-no-dst"},
		},
		{
			name:       "brazil without dst",
			in:         Sample{MCC: 724, OffsetMinutes: -180},
			wantOffset: -180,
		},
		{
			name:       "dst elsewhere untouched",
			in:         Sample{MCC: 208, OffsetMinutes: 60, DST: true},
			wantOffset: 60,
			wantDST:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, rules := applyCorrections(tt.in)
			assert.Equal(t, tt.wantOffset, got.OffsetMinutes)
			assert.Equal(t, tt.wantDST, got.DST)
			assert.Equal(t, tt.wantRules, rules)
		})
	}
}

// TestPropertyCorrectionsIdempotent verifies a corrected sample is left
// alone by a second pass.
func TestPropertyCorrectionsIdempotent(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		s := Sample{
			MCC:           rapid.SampledFrom([]int{0, 208, 404, 405, 724}).Draw(t, "mcc"),
			OffsetMinutes: rapid.IntRange(-12*60, 14*60).Draw(t, "offset"),
			DST:           rapid.Bool().Draw(t, "dst"),
		}
		once, _ := applyCorrections(s)
		twice, rules := applyCorrections(once)
		if twice != once || len(rules) != 0 {
			t.Fatalf("second correction changed %+v to %+v via %v", once, twice, rules)
		}
	})
}

// TestPropertyParseNITZOffset verifies the standard offset plus the DST
// adjustment always equals the transmitted total.
func TestPropertyParseNITZOffset(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		quarters := rapid.IntRange(-48, 56).Draw(t, "quarters")
		dt := rapid.IntRange(0, 2).Draw(t, "dt")
		hour := rapid.IntRange(0, 23).Draw(t, "hour")
		raw := fmt.Sprintf("25/03/30,%02d:15:00%+d,%d", hour, quarters, dt)

		s, err := ParseNITZ(raw, 0, 0, time.Time{})
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if s.OffsetMinutes+dt*60 != quarters*15 {
			t.Fatalf("%q: offset %d dst %d does not add up", raw, s.OffsetMinutes, dt)
		}
		if s.DST != (dt > 0) {
			t.Fatalf("%q: dst flag %v", raw, s.DST)
		}
	})
}
