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
	"path"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultSearchPaths are tried in order when no paths are configured.
var DefaultSearchPaths = []string{
	"/usr/share/zoneinfo",
	"/usr/lib/zoneinfo",
}

// maxFileSize caps how much of a rule file is read. The largest files in a
// fat tzdata build are well under 4KB.
const maxFileSize = 1 << 20

// Loader locates zone rule files on a filesystem and parses them.
type Loader struct {
	fs          afero.Fs
	searchPaths []string
	opts        Options
}

// NewLoader creates a Loader reading from fs. Paths are searched in order,
// the first existing file wins.
func NewLoader(fs afero.Fs, searchPaths []string) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if len(searchPaths) == 0 {
		searchPaths = DefaultSearchPaths
	}
	return &Loader{
		fs:          fs,
		searchPaths: searchPaths,
	}
}

// WithOptions returns a copy of the loader using opts when parsing.
func (l *Loader) WithOptions(opts Options) *Loader {
	cp := *l
	cp.opts = opts
	return &cp
}

// SearchPaths returns the configured zoneinfo directories.
func (l *Loader) SearchPaths() []string {
	return l.searchPaths
}

// Load finds and parses the rule file for zoneID. Unknown zones and
// unreadable files give an empty list.
func (l *Loader) Load(zoneID string) []Transition {
	if !validZoneID(zoneID) {
		log.Debug().Str("zone", zoneID).Msg("tzif: rejecting invalid zone id")
		return []Transition{}
	}

	for _, dir := range l.searchPaths {
		p := path.Join(dir, zoneID)
		data, err := l.readFile(p)
		if err != nil {
			continue
		}
		ts := ParseWithOptions(data, l.opts)
		if len(ts) == 0 {
			log.Warn().Str("path", p).Msg("tzif: unusable zone rule file")
		}
		return ts
	}

	log.Debug().Str("zone", zoneID).Msg("tzif: zone rule file not found")
	return []Transition{}
}

// Path returns the first existing rule file for zoneID.
func (l *Loader) Path(zoneID string) (string, bool) {
	if !validZoneID(zoneID) {
		return "", false
	}
	for _, dir := range l.searchPaths {
		p := path.Join(dir, zoneID)
		if fi, err := l.fs.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

func (l *Loader) readFile(p string) ([]byte, error) {
	fi, err := l.fs.Stat(p)
	if err != nil {
		return nil, err //nolint:wrapcheck // only checked for presence
	}
	if fi.IsDir() || fi.Size() > maxFileSize {
		return nil, errTruncated
	}
	return afero.ReadFile(l.fs, p) //nolint:wrapcheck // only checked for presence
}

// validZoneID rejects ids that would escape the search directory.
func validZoneID(id string) bool {
	if id == "" || strings.HasPrefix(id, "/") || strings.Contains(id, "\\") {
		return false
	}
	for _, part := range strings.Split(id, "/") {
		if part == ".." || part == "" {
			return false
		}
	}
	return true
}
