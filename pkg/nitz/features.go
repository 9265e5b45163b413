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
	"strings"

	"github.com/ZaparooProject/timekeeper/pkg/config"
)

// Features toggles optional pipeline behaviour. They are refreshed from the
// config at the start of every pass.
type Features uint8

const (
	// FeatureAllowGeneric permits Etc/GMT±N zones when no specific zone matches.
	FeatureAllowGeneric Features = 1 << iota
	// FeatureAllowMCC narrows zone resolution to the carrier's country.
	FeatureAllowMCC
	// FeatureForceGeneric always picks the generic zone for the offset.
	FeatureForceGeneric
	// FeatureAllowNTP queries NTP when the sample carries no valid time.
	FeatureAllowNTP
)

var featureNames = []struct {
	name string
	f    Features
}{
	{"generic", FeatureAllowGeneric},
	{"mcc", FeatureAllowMCC},
	{"force-generic", FeatureForceGeneric},
	{"ntp", FeatureAllowNTP},
}

func (f Features) Has(x Features) bool {
	return f&x == x
}

func (f Features) String() string {
	var names []string
	for _, n := range featureNames {
		if f.Has(n.f) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// FeaturesFromConfig reads the [nitz] toggles.
func FeaturesFromConfig(cfg *config.Instance) Features {
	var f Features
	if cfg == nil {
		return f
	}
	if cfg.NITZAllowGeneric() {
		f |= FeatureAllowGeneric
	}
	if cfg.NITZAllowMCC() {
		f |= FeatureAllowMCC
	}
	if cfg.NITZForceGeneric() {
		f |= FeatureForceGeneric
	}
	if cfg.NITZAllowNTP() {
		f |= FeatureAllowNTP
	}
	return f
}
