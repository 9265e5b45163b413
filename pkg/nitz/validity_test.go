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
	"testing"

	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidity_Next(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		from     Validity
		want     Validity
		anyValid bool
	}{
		{name: "valid stays valid", from: ValidityValid, anyValid: true, want: ValidityValid},
		{name: "valid to invalid", from: ValidityValid, want: ValidityInvalidUserNotSet},
		{name: "not set recovers", from: ValidityInvalidUserNotSet, anyValid: true, want: ValidityValid},
		{name: "not set stays", from: ValidityInvalidUserNotSet, want: ValidityInvalidUserNotSet},
		{name: "user set recovers", from: ValidityInvalidUserSet, anyValid: true, want: ValidityValid},
		{name: "user set stays", from: ValidityInvalidUserSet, want: ValidityInvalidUserSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.from.Next(tt.anyValid))
		})
	}
}

func TestValidity_AfterManualSet(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ValidityInvalidUserSet, ValidityInvalidUserNotSet.AfterManualSet())
	assert.Equal(t, ValidityInvalidUserSet, ValidityInvalidUserSet.AfterManualSet())
	assert.Equal(t, ValidityValid, ValidityValid.AfterManualSet())
}

func TestParseValidity(t *testing.T) {
	t.Parallel()

	for _, v := range []Validity{ValidityValid, ValidityInvalidUserNotSet, ValidityInvalidUserSet} {
		got, ok := ParseValidity(v.String())
		require.True(t, ok, v.String())
		assert.Equal(t, v, got)
	}

	got, ok := ParseValidity("bogus")
	assert.False(t, ok)
	assert.Equal(t, ValidityInvalidUserNotSet, got)
}

func TestFeatures(t *testing.T) {
	t.Parallel()

	f := FeatureAllowGeneric | FeatureAllowNTP
	assert.True(t, f.Has(FeatureAllowGeneric))
	assert.False(t, f.Has(FeatureAllowMCC))
	assert.False(t, f.Has(FeatureAllowGeneric|FeatureAllowMCC))
	assert.Equal(t, "generic|ntp", f.String())
	assert.Equal(t, "none", Features(0).String())
	assert.Equal(t, Features(0), FeaturesFromConfig(nil))

	vals := config.BaseDefaults
	vals.NITZ.ForceGeneric = true
	vals.NITZ.AllowMCC = false
	cfg, err := config.NewConfig(t.TempDir(), vals)
	require.NoError(t, err)
	assert.Equal(t, FeatureAllowGeneric|FeatureForceGeneric|FeatureAllowNTP, FeaturesFromConfig(cfg))
}
