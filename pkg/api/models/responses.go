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

import (
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/clocks"
	"github.com/ZaparooProject/timekeeper/pkg/tzrules"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
)

type VersionResponse struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type TimeResponse struct {
	UTC      time.Time `json:"utc"`
	Local    string    `json:"local"`
	Zone     string    `json:"zone"`
	Source   string    `json:"source"`
	Validity string    `json:"validity"`
	Offset   int64     `json:"offsetSeconds"`
}

type ZoneResponse struct {
	zones.ZoneInfo
	Abbreviation string `json:"abbreviation,omitempty"`
	Selected     bool   `json:"selected"`
}

type ZoneListResponse struct {
	Zones []zones.ZoneInfo `json:"zones"`
}

type ClockEntryResponse struct {
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
	Tag        string     `json:"tag"`
	Priority   int        `json:"priority"`
	Offset     int64      `json:"offsetSeconds"`
	Known      bool       `json:"known"`
}

type ClockReadingResponse struct {
	Time   time.Time `json:"time"`
	Tag    string    `json:"tag"`
	Offset int64     `json:"offsetSeconds"`
}

type ClocksResponse struct {
	Reading        *ClockReadingResponse `json:"reading,omitempty"`
	Entries        []ClockEntryResponse  `json:"entries"`
	ManualOverride bool                  `json:"manualOverride"`
}

type BroadcastResponse struct {
	UTC      time.Time `json:"utc"`
	Local    string    `json:"local"`
	Sequence int64     `json:"seq"`
}

type BroadcastSetResponse struct {
	Accepted bool `json:"accepted"`
}

type RulesResponse struct {
	Zone  string             `json:"zone"`
	Rules []tzrules.YearRule `json:"rules"`
}

type BiasResponse struct {
	Zone zones.ZoneInfo `json:"zone"`
}

type PrefResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Set   bool   `json:"set"`
}

type NTPSyncResponse struct {
	Offset  int64 `json:"offsetSeconds"`
	Applied bool  `json:"applied"`
}

// LocalLayout formats wall clock times without a zone designator.
const LocalLayout = "2006-01-02T15:04:05"

// NewClockEntryResponse converts a registry entry for the API.
func NewClockEntryResponse(e clocks.Entry) ClockEntryResponse {
	r := ClockEntryResponse{
		Tag:      e.Tag,
		Priority: e.Priority,
		Offset:   int64(e.Offset / time.Second),
		Known:    e.Known,
	}
	if !e.LastUpdate.IsZero() {
		lu := e.LastUpdate
		r.LastUpdate = &lu
	}
	return r
}

// Notification payloads.

type TimeChangedPayload struct {
	Time   time.Time `json:"time"`
	Zone   string    `json:"zone,omitempty"`
	Source string    `json:"source"`
	Delta  int64     `json:"deltaSeconds"`
}

type ValidityPayload struct {
	Validity string `json:"validity"`
	Previous string `json:"previous"`
}

type ZoneChangedPayload struct {
	Zone       zones.ZoneInfo `json:"zone"`
	Previous   string         `json:"previous,omitempty"`
	Resolution string         `json:"resolution"`
}

type ClocksChangedPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Tag       string    `json:"tag"`
	Priority  int       `json:"priority"`
	Offset    int64     `json:"offsetSeconds"`
}
