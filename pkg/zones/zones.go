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

// Package zones holds the in-memory catalog of known time zones and resolves
// a zone from network offset, DST and carrier hints.
package zones

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
)

//go:embed data/zones.json data/mcc.json
var dataFiles embed.FS

// FailsafeName is the zone returned when nothing else matches.
const FailsafeName = "Etc/UTC"

// Whole-hour range covered by the generated generic zones.
const (
	minGenericHours = -12
	maxGenericHours = 14
)

// ZoneInfo describes a single zone. Values are immutable once the catalog
// is built.
type ZoneInfo struct {
	Name             string `json:"ZoneID"`
	Country          string `json:"Country,omitempty"`
	CountryCode      string `json:"CountryCode"`
	City             string `json:"City,omitempty"`
	UTCOffsetMinutes int    `json:"offsetFromUTC"`
	ZonesInCountry   int    `json:"zonesInCountry,omitempty"`
	SupportsDST      bool   `json:"supportsDST"`
	Preferred        bool   `json:"preferred,omitempty"`
}

// IsGeneric reports whether z is one of the generated per-offset zones.
func (z *ZoneInfo) IsGeneric() bool {
	return z.CountryCode == "" && z.Name != FailsafeName
}

// Resolution records which step of ResolveByOffset produced a zone.
type Resolution int

const (
	ResolvedFailsafe Resolution = iota
	ResolvedCountry
	ResolvedPreferred
	ResolvedGeneric
)

func (r Resolution) String() string {
	switch r {
	case ResolvedCountry:
		return "country"
	case ResolvedPreferred:
		return "preferred"
	case ResolvedGeneric:
		return "generic"
	default:
		return "failsafe"
	}
}

type offsetKey struct {
	offset int
	dst    bool
}

// Catalog is built once at startup and only read afterwards.
type Catalog struct {
	preferred map[offsetKey]ZoneInfo
	generic   map[int]ZoneInfo
	mcc       map[int]string
	failsafe  ZoneInfo
	specific  []ZoneInfo
	generics  []ZoneInfo
}

type zonesFile struct {
	TimeZones []ZoneInfo `json:"timeZones"`
}

type mccFile struct {
	MCC []struct {
		CountryCode string `json:"countryCode"`
		MCC         int    `json:"mcc"`
	} `json:"mcc"`
}

// NewCatalog builds the catalog from the embedded zone and MCC tables.
func NewCatalog() (*Catalog, error) {
	zdata, err := dataFiles.ReadFile("data/zones.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read zone table: %w", err)
	}
	mdata, err := dataFiles.ReadFile("data/mcc.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read mcc table: %w", err)
	}
	return Parse(zdata, mdata)
}

// Parse builds a catalog from a zone table and an MCC table in the
// embedded JSON formats.
func Parse(zoneData, mccData []byte) (*Catalog, error) {
	var zf zonesFile
	if err := json.Unmarshal(zoneData, &zf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal zone table: %w", err)
	}

	var mf mccFile
	if len(mccData) > 0 {
		if err := json.Unmarshal(mccData, &mf); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mcc table: %w", err)
		}
	}

	mcc := make(map[int]string, len(mf.MCC))
	for _, e := range mf.MCC {
		mcc[e.MCC] = e.CountryCode
	}

	return New(zf.TimeZones, mcc), nil
}

// New builds a catalog from zones in catalog order and an MCC to country
// code table.
func New(specific []ZoneInfo, mcc map[int]string) *Catalog {
	c := &Catalog{
		preferred: make(map[offsetKey]ZoneInfo),
		generic:   make(map[int]ZoneInfo),
		mcc:       mcc,
		failsafe: ZoneInfo{
			Name: FailsafeName,
			City: "UTC",
		},
	}
	if c.mcc == nil {
		c.mcc = make(map[int]string)
	}

	perCountry := make(map[string]int)
	seen := make(map[string]bool, len(specific))
	for _, z := range specific {
		if z.Name == "" || seen[z.Name] {
			log.Warn().Str("zone", z.Name).Msg("zones: skipping duplicate or unnamed zone")
			continue
		}
		seen[z.Name] = true
		perCountry[z.CountryCode]++
		c.specific = append(c.specific, z)
	}

	for i := range c.specific {
		z := &c.specific[i]
		z.ZonesInCountry = perCountry[z.CountryCode]
		if !z.Preferred {
			continue
		}
		k := offsetKey{offset: z.UTCOffsetMinutes, dst: z.SupportsDST}
		if prev, ok := c.preferred[k]; ok {
			log.Warn().
				Str("zone", z.Name).
				Str("kept", prev.Name).
				Int("offset", z.UTCOffsetMinutes).
				Bool("dst", z.SupportsDST).
				Msg("zones: more than one preferred zone for offset, demoting")
			z.Preferred = false
			continue
		}
		c.preferred[k] = *z
	}

	for h := minGenericHours; h <= maxGenericHours; h++ {
		g := genericZone(h)
		c.generic[h*60] = g
		c.generics = append(c.generics, g)
	}

	log.Debug().
		Int("zones", len(c.specific)).
		Int("generic", len(c.generics)).
		Int("mcc", len(c.mcc)).
		Msg("zones: catalog built")

	return c
}

// genericZone names follow the POSIX convention, so the sign is inverted:
// UTC+1 is Etc/GMT-1.
func genericZone(hours int) ZoneInfo {
	name := "Etc/GMT"
	switch {
	case hours > 0:
		name += "-" + strconv.Itoa(hours)
	case hours < 0:
		name += "+" + strconv.Itoa(-hours)
	}
	return ZoneInfo{
		Name:             name,
		City:             name,
		UTCOffsetMinutes: hours * 60,
	}
}

// Failsafe returns the zone used when resolution finds nothing.
func (c *Catalog) Failsafe() ZoneInfo {
	return c.failsafe
}

// All returns the specific zones in catalog order.
func (c *Catalog) All() []ZoneInfo {
	out := make([]ZoneInfo, len(c.specific))
	copy(out, c.specific)
	return out
}

// Generics returns the generated per-offset zones.
func (c *Catalog) Generics() []ZoneInfo {
	out := make([]ZoneInfo, len(c.generics))
	copy(out, c.generics)
	return out
}

// Generic returns the generic zone for a whole-hour offset.
func (c *Catalog) Generic(offsetMinutes int) (ZoneInfo, bool) {
	z, ok := c.generic[offsetMinutes]
	return z, ok
}

// CountryForMCC maps a mobile country code to an ISO country code.
func (c *Catalog) CountryForMCC(mcc int) (string, bool) {
	cc, ok := c.mcc[mcc]
	return cc, ok
}

// ZonesWithOffset returns every zone with the given standard offset, specific
// zones first in catalog order, then the generic zone if there is one.
func (c *Catalog) ZonesWithOffset(offsetMinutes int) []ZoneInfo {
	var out []ZoneInfo
	for _, z := range c.specific {
		if z.UTCOffsetMinutes == offsetMinutes {
			out = append(out, z)
		}
	}
	if g, ok := c.generic[offsetMinutes]; ok {
		out = append(out, g)
	}
	return out
}

// ResolveByName finds a zone by exact name, searching specific zones then
// generic ones. The failsafe zone is also known by name.
func (c *Catalog) ResolveByName(name string) (ZoneInfo, bool) {
	for _, z := range c.specific {
		if z.Name == name {
			return z, true
		}
	}
	for _, z := range c.generics {
		if z.Name == name {
			return z, true
		}
	}
	if name == c.failsafe.Name {
		return c.failsafe, true
	}
	return ZoneInfo{}, false
}

// ResolveByOffset picks a zone for a network offset and DST flag. A
// positive mcc narrows the search to zones in that country first. The
// result is never empty: when nothing matches the failsafe zone is
// returned with ResolvedFailsafe.
func (c *Catalog) ResolveByOffset(offsetMinutes int, dst bool, mcc int, allowGeneric bool) (ZoneInfo, Resolution) {
	if mcc > 0 {
		if z, ok := c.resolveInCountry(offsetMinutes, dst, mcc); ok {
			return z, ResolvedCountry
		}
	}

	if z, ok := c.preferred[offsetKey{offset: offsetMinutes, dst: dst}]; ok {
		return z, ResolvedPreferred
	}
	if z, ok := c.preferred[offsetKey{offset: offsetMinutes, dst: !dst}]; ok {
		return z, ResolvedPreferred
	}

	if allowGeneric {
		if z, ok := c.generic[offsetMinutes]; ok {
			return z, ResolvedGeneric
		}
	}

	log.Warn().
		Int("offset", offsetMinutes).
		Bool("dst", dst).
		Int("mcc", mcc).
		Msg("zones: no zone for offset, using failsafe")
	return c.failsafe, ResolvedFailsafe
}

// resolveInCountry ranks same-country same-offset zones:
// preferred and DST match, then DST match, then preferred, then any.
func (c *Catalog) resolveInCountry(offsetMinutes int, dst bool, mcc int) (ZoneInfo, bool) {
	cc, ok := c.mcc[mcc]
	if !ok {
		return ZoneInfo{}, false
	}

	best := -1
	var found ZoneInfo
	for _, z := range c.specific {
		if z.CountryCode != cc || z.UTCOffsetMinutes != offsetMinutes {
			continue
		}
		rank := 0
		if z.SupportsDST == dst {
			rank += 2
		}
		if z.Preferred {
			rank++
		}
		if rank > best {
			best = rank
			found = z
		}
	}
	return found, best >= 0
}
