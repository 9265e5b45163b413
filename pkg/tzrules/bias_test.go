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
	"testing"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/testing/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func euRules() (standard, daylight *TransitionRule) {
	return &TransitionRule{Month: 10, DayOfWeek: 0, Week: 5, Hour: 3},
		&TransitionRule{Month: 3, DayOfWeek: 0, Week: 5, Hour: 2}
}

func usRules() (standard, daylight *TransitionRule) {
	return &TransitionRule{Month: 11, DayOfWeek: 0, Week: 1, Hour: 2},
		&TransitionRule{Month: 3, DayOfWeek: 0, Week: 2, Hour: 2}
}

func TestZoneFromBias(t *testing.T) {
	t.Parallel()

	s := newTestService(t, nil)
	euStd, euDay := euRules()
	usStd, usDay := usRules()

	tests := []struct {
		wantErr error
		name    string
		want    string
		desc    BiasDescriptor
	}{
		{
			name: "no rules picks first in catalog order",
			desc: BiasDescriptor{Bias: -60},
			want: "Europe/Paris",
		},
		{
			name: "eu rules at utc+1",
			desc: BiasDescriptor{Bias: -60, Standard: euStd, Daylight: euDay},
			want: "Europe/Paris",
		},
		{
			name: "eu rules at utc",
			desc: BiasDescriptor{
				Bias:         0,
				Standard:     &TransitionRule{Month: 10, DayOfWeek: 0, Week: 5, Hour: 2},
				Daylight:     &TransitionRule{Month: 3, DayOfWeek: 0, Week: 5, Hour: 1},
				DaylightBias: -60,
			},
			want: "Europe/London",
		},
		{
			name: "us eastern",
			desc: BiasDescriptor{Bias: 300, Standard: usStd, Daylight: usDay},
			want: "America/New_York",
		},
		{
			name: "us central",
			desc: BiasDescriptor{Bias: 360, Standard: usStd, Daylight: usDay},
			want: "America/Chicago",
		},
		{
			name:    "us rules in europe",
			desc:    BiasDescriptor{Bias: -60, Standard: usStd, Daylight: usDay},
			wantErr: ErrNoMatch,
		},
		{
			name:    "no zone at offset",
			desc:    BiasDescriptor{Bias: 17},
			wantErr: ErrNoMatch,
		},
		{
			name:    "half a rule",
			desc:    BiasDescriptor{Bias: -60, Standard: euStd},
			wantErr: ErrInvalidDescriptor,
		},
		{
			name:    "bad week",
			desc:    BiasDescriptor{Bias: -60, Standard: euStd, Daylight: &TransitionRule{Month: 3, Week: 6}},
			wantErr: ErrInvalidDescriptor,
		},
		{
			name:    "bad month",
			desc:    BiasDescriptor{Bias: -60, Standard: &TransitionRule{Month: 13, Week: 1}, Daylight: euDay},
			wantErr: ErrInvalidDescriptor,
		},
		{
			name:    "bias out of range",
			desc:    BiasDescriptor{Bias: 2000},
			wantErr: ErrInvalidDescriptor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			z, err := s.ZoneFromBias(tt.desc)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, z.Name)
		})
	}
}

func TestZoneFromBias_SkipsZonesWithoutRules(t *testing.T) {
	t.Parallel()

	fs := fixtures.NewZoneinfoFs()
	require.NoError(t, fs.Remove(fixtures.ZoneinfoRoot+"/Europe/Paris"))
	s := newTestService(t, fs)

	std, day := euRules()
	z, err := s.ZoneFromBias(BiasDescriptor{Bias: -60, Standard: std, Daylight: day})
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", z.Name)
}

func TestTransitionRule_LocalInstant(t *testing.T) {
	t.Parallel()

	std, day := euRules()
	assert.Equal(t, time.Date(2024, 3, 31, 2, 0, 0, 0, time.UTC), day.localInstant(2024))
	assert.Equal(t, time.Date(2024, 10, 27, 3, 0, 0, 0, time.UTC), std.localInstant(2024))

	usStd, usDay := usRules()
	assert.Equal(t, time.Date(2025, 3, 9, 2, 0, 0, 0, time.UTC), usDay.localInstant(2025))
	assert.Equal(t, time.Date(2025, 11, 2, 2, 0, 0, 0, time.UTC), usStd.localInstant(2025))
}

// TestPropertyLocalInstant verifies the computed date is the requested
// weekday, inside the month, and that week 5 is the month's last.
func TestPropertyLocalInstant(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		r := TransitionRule{
			Month:     rapid.IntRange(1, 12).Draw(t, "month"),
			DayOfWeek: rapid.IntRange(0, 6).Draw(t, "dow"),
			Week:      rapid.IntRange(1, 5).Draw(t, "week"),
			Hour:      rapid.IntRange(0, 23).Draw(t, "hour"),
		}
		year := rapid.IntRange(1970, 2100).Draw(t, "year")

		d := r.localInstant(year)
		if int(d.Weekday()) != r.DayOfWeek || int(d.Month()) != r.Month || d.Year() != year {
			t.Fatalf("%+v in %d gave %s", r, year, d)
		}
		if r.Week < lastWeek && d.Day() != 1+7*(r.Week-1)+((r.DayOfWeek-int(time.Date(year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC).Weekday())+7)%7) {
			t.Fatalf("%+v in %d gave day %d", r, year, d.Day())
		}
		if r.Week == lastWeek && d.AddDate(0, 0, 7).Month() == d.Month() {
			t.Fatalf("%+v in %d is not the last in the month", r, year)
		}
	})
}
