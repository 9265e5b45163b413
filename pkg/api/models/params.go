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

package models

type TimeSetParams struct {
	Time string `json:"time" validate:"required,rfc3339"`
}

// NITZParams is either a raw NITZ string ("yy/mm/dd,hh:mm:ss±tz,dst") or
// the decoded fields. Offset is the standard offset in minutes.
type NITZParams struct {
	Raw           string `json:"raw,omitempty"`
	Year          int    `json:"year,omitempty" validate:"omitempty,min=1970,max=2100"`
	Month         int    `json:"month,omitempty" validate:"omitempty,min=1,max=12"`
	Day           int    `json:"day,omitempty" validate:"omitempty,min=1,max=31"`
	Hour          int    `json:"hour" validate:"min=0,max=23"`
	Minute        int    `json:"minute" validate:"min=0,max=59"`
	Second        int    `json:"second" validate:"min=0,max=60"`
	OffsetMinutes int    `json:"offset" validate:"min=-720,max=840"`
	MCC           int    `json:"mcc" validate:"min=0,max=999"`
	MNC           int    `json:"mnc" validate:"min=0,max=999"`
	DST           bool   `json:"dst"`
	TimeValid     bool   `json:"timeValid"`
	ZoneValid     bool   `json:"zoneValid"`
	DSTValid      bool   `json:"dstValid"`
}

type ZoneSetParams struct {
	Zone string `json:"zone" validate:"required,zone"`
}

type ZoneListParams struct {
	Offset *int `json:"offset,omitempty" validate:"omitempty,min=-720,max=840"`
}

type ClocksParams struct {
	Tag            string `json:"tag,omitempty" validate:"omitempty,clocktag|eq=system"`
	Fallback       string `json:"fallback,omitempty" validate:"omitempty,clocktag|eq=system"`
	ManualOverride bool   `json:"manualOverride"`
}

type ClockRegisterParams struct {
	Offset   *string `json:"offset,omitempty" validate:"omitempty,duration"`
	Tag      string  `json:"tag" validate:"required,clocktag"`
	Priority int     `json:"priority" validate:"min=0,max=1000"`
}

type ClockUpdateParams struct {
	Tag    string `json:"tag" validate:"required,clocktag"`
	Offset string `json:"offset" validate:"required,duration"`
}

// BroadcastSetParams carries the over-the-air clock. Local is read for its
// wall clock fields only.
type BroadcastSetParams struct {
	UTC   string `json:"utc" validate:"required,rfc3339"`
	Local string `json:"local" validate:"required,rfc3339"`
	Seq   int64  `json:"seq" validate:"min=0"`
}

type RulesParams struct {
	Zone  string `json:"zone" validate:"required,zone"`
	Years []int  `json:"years" validate:"required,min=1,max=50,dive,min=1970,max=2100"`
}

// TransitionRuleParams is a Windows SYSTEMTIME style rule. Week 5 means
// the last such weekday of the month.
type TransitionRuleParams struct {
	Month     int `json:"month" validate:"min=1,max=12"`
	DayOfWeek int `json:"dayOfWeek" validate:"min=0,max=6"`
	Week      int `json:"week" validate:"min=1,max=5"`
	Hour      int `json:"hour" validate:"min=0,max=23"`
	Minute    int `json:"minute" validate:"min=0,max=59"`
}

type BiasParams struct {
	Standard     *TransitionRuleParams `json:"standard,omitempty"`
	Daylight     *TransitionRuleParams `json:"daylight,omitempty"`
	Bias         int                   `json:"bias" validate:"min=-840,max=720"`
	DaylightBias int                   `json:"daylightBias" validate:"min=-120,max=120"`
}

type PrefsGetParams struct {
	Key string `json:"key" validate:"required,oneof=useNetworkTime useNetworkTimeZone timeZone nitzValidity useManualTime launchOnTimeChange"` //nolint:lll // tag list
}

type PrefsSetParams struct {
	Key   string `json:"key" validate:"required,oneof=useNetworkTime useNetworkTimeZone timeZone useManualTime launchOnTimeChange"` //nolint:lll // tag list
	Value string `json:"value"`
}
