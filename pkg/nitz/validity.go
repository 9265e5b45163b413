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

// Validity is the persisted summary of whether the device has trustworthy
// network time.
type Validity int

const (
	ValidityValid Validity = iota
	// ValidityInvalidUserNotSet means the network failed and the user has
	// not set the time by hand yet.
	ValidityInvalidUserNotSet
	// ValidityInvalidUserSet means the network failed but the user set the
	// time manually.
	ValidityInvalidUserSet
)

// Stored tokens for each state.
const (
	TokenValid             = "NITZVALID"
	TokenInvalidUserNotSet = "NITZINVALIDUSERNOTSET"
	TokenInvalidUserSet    = "NITZINVALIDUSERSET"
)

// defaultValidity is assumed before any cycle has completed.
const defaultValidity = ValidityInvalidUserNotSet

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return TokenValid
	case ValidityInvalidUserSet:
		return TokenInvalidUserSet
	default:
		return TokenInvalidUserNotSet
	}
}

// ParseValidity maps a stored token back to its state.
func ParseValidity(s string) (Validity, bool) {
	switch s {
	case TokenValid:
		return ValidityValid, true
	case TokenInvalidUserNotSet:
		return ValidityInvalidUserNotSet, true
	case TokenInvalidUserSet:
		return ValidityInvalidUserSet, true
	default:
		return defaultValidity, false
	}
}

// Next is the state after a timeout pass. Any valid time, zone or DST data
// returns to VALID. A fully invalid pass only leaves VALID; the invalid
// states keep whatever the user has done.
func (v Validity) Next(anyValid bool) Validity {
	if anyValid {
		return ValidityValid
	}
	if v == ValidityValid {
		return ValidityInvalidUserNotSet
	}
	return v
}

// AfterManualSet is the state after the user sets the time by hand.
func (v Validity) AfterManualSet() Validity {
	if v == ValidityInvalidUserNotSet {
		return ValidityInvalidUserSet
	}
	return v
}
