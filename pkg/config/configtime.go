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

package config

import (
	"maps"
	"path/filepath"
	"time"
)

const (
	DefaultNTPCommand         = "ntpdate"
	DefaultNTPMarker          = "offset"
	DefaultNTPTimeout         = 15 * time.Second
	DefaultRetryTimeout       = 30 * time.Second
	DefaultMaxRetryExtensions = 3
	DefaultMaxSampleAge       = 2 * time.Minute
	DefaultLocaltimePath      = "/etc/localtime"
	DefaultStoreBackend       = "sqlite"
)

var (
	DefaultNTPArgs     = []string{"-q", "pool.ntp.org"}
	DefaultSearchPaths = []string{"/usr/share/zoneinfo", "/usr/lib/zoneinfo"}

	// DefaultClockPriorities ranks the built-in sources; higher wins.
	DefaultClockPriorities = map[string]int{
		"manual": 100,
		"ntp":    50,
		"nitz":   40,
	}
)

type Store struct {
	Backend string `toml:"backend,omitempty"`
	Path    string `toml:"path,omitempty"`
}

type Zoneinfo struct {
	LocaltimePath string   `toml:"localtime_path,omitempty"`
	SearchPaths   []string `toml:"search_paths,omitempty"`
	Watch         *bool    `toml:"watch,omitempty"`
}

type NTP struct {
	Command string   `toml:"command,omitempty"`
	Marker  string   `toml:"marker,omitempty"`
	Timeout string   `toml:"timeout,omitempty"`
	Args    []string `toml:"args,omitempty"`
}

type NITZ struct {
	MaxRetryExtensions *int   `toml:"max_retry_extensions,omitempty"`
	RetryTimeout       string `toml:"retry_timeout,omitempty"`
	MaxSampleAge       string `toml:"max_sample_age,omitempty"`
	AllowGeneric       bool   `toml:"allow_generic"`
	AllowMCC           bool   `toml:"allow_mcc"`
	ForceGeneric       bool   `toml:"force_generic"`
	AllowNTP           bool   `toml:"allow_ntp"`
}

type Launch struct {
	Command string `toml:"command,omitempty"`
}

type Clocks struct {
	Priorities map[string]int `toml:"priorities,omitempty"`
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// StoreBackend is the preference store backend name.
func (c *Instance) StoreBackend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Store.Backend == "" {
		return DefaultStoreBackend
	}
	return c.vals.Store.Backend
}

// StorePath returns the preference database path. Relative paths and the
// default are resolved against dataDir.
func (c *Instance) StorePath(dataDir string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.vals.Store.Path
	if p == "" {
		if c.vals.Store.Backend == "bolt" {
			p = PrefsBoltFile
		} else {
			p = PrefsSQLiteFile
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

func (c *Instance) ZoneinfoSearchPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vals.Zoneinfo.SearchPaths) == 0 {
		return DefaultSearchPaths
	}
	return c.vals.Zoneinfo.SearchPaths
}

func (c *Instance) LocaltimePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Zoneinfo.LocaltimePath == "" {
		return DefaultLocaltimePath
	}
	return c.vals.Zoneinfo.LocaltimePath
}

// WatchZoneinfo reports whether tzdata updates on disk are watched.
func (c *Instance) WatchZoneinfo() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Zoneinfo.Watch == nil {
		return true
	}
	return *c.vals.Zoneinfo.Watch
}

// NTPCommand returns the helper command and its arguments. Custom args are
// only used with a custom command.
func (c *Instance) NTPCommand() (string, []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.NTP.Command == "" {
		return DefaultNTPCommand, DefaultNTPArgs
	}
	return c.vals.NTP.Command, c.vals.NTP.Args
}

func (c *Instance) NTPMarker() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.NTP.Marker == "" {
		return DefaultNTPMarker
	}
	return c.vals.NTP.Marker
}

func (c *Instance) NTPTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDurationOr(c.vals.NTP.Timeout, DefaultNTPTimeout)
}

func (c *Instance) NITZAllowGeneric() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.NITZ.AllowGeneric
}

func (c *Instance) NITZAllowMCC() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.NITZ.AllowMCC
}

func (c *Instance) NITZForceGeneric() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.NITZ.ForceGeneric
}

func (c *Instance) SetNITZForceGeneric(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.NITZ.ForceGeneric = enabled
}

func (c *Instance) NITZAllowNTP() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.NITZ.AllowNTP
}

func (c *Instance) NITZRetryTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDurationOr(c.vals.NITZ.RetryTimeout, DefaultRetryTimeout)
}

func (c *Instance) NITZMaxRetryExtensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.NITZ.MaxRetryExtensions == nil || *c.vals.NITZ.MaxRetryExtensions < 0 {
		return DefaultMaxRetryExtensions
	}
	return *c.vals.NITZ.MaxRetryExtensions
}

func (c *Instance) NITZMaxSampleAge() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDurationOr(c.vals.NITZ.MaxSampleAge, DefaultMaxSampleAge)
}

func (c *Instance) LaunchCommand() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Launch.Command
}

// ClockPriorities merges configured priorities over the defaults.
func (c *Instance) ClockPriorities() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := maps.Clone(DefaultClockPriorities)
	maps.Copy(out, c.vals.Clocks.Priorities)
	return out
}
