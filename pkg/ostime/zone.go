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

package ostime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultLocaltimePath is the file most libcs read the active zone from.
const DefaultLocaltimePath = "/etc/localtime"

var ErrZoneNotFound = errors.New("zone rule file not found")

// ZoneActivator makes a zone the system's active local zone.
type ZoneActivator interface {
	Activate(zoneName string) error
}

// ZoneLocator finds the rule file for a zone.
type ZoneLocator interface {
	Path(zoneID string) (string, bool)
}

// FileActivator points the localtime file at a zone's rule file and sets
// TZ for this process. time.Local is left alone: it is read without
// locking by every goroutine, so handlers that need the active zone load
// it by name instead.
type FileActivator struct {
	fs            afero.Fs
	locator       ZoneLocator
	setenv        func(key, value string) error
	localtimePath string
}

type FileActivatorOption func(*FileActivator)

// WithSetenv replaces os.Setenv, mostly for tests.
func WithSetenv(fn func(key, value string) error) FileActivatorOption {
	return func(a *FileActivator) { a.setenv = fn }
}

func NewFileActivator(
	fs afero.Fs,
	locator ZoneLocator,
	localtimePath string,
	opts ...FileActivatorOption,
) *FileActivator {
	if localtimePath == "" {
		localtimePath = DefaultLocaltimePath
	}
	a := &FileActivator{
		fs:            fs,
		locator:       locator,
		localtimePath: localtimePath,
		setenv:        os.Setenv,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Activate replaces the localtime file in one rename, so readers see either
// the old zone or the new one and never a missing file.
func (a *FileActivator) Activate(zoneName string) error {
	src, ok := a.locator.Path(zoneName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrZoneNotFound, zoneName)
	}

	if err := a.fs.MkdirAll(filepath.Dir(a.localtimePath), 0o755); err != nil {
		return fmt.Errorf("failed to create localtime directory: %w", err)
	}

	tmp := a.localtimePath + ".timekeeper-new"
	if err := a.fs.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale localtime: %w", err)
	}

	linked := false
	if linker, ok := a.fs.(afero.Linker); ok {
		linked = linker.SymlinkIfPossible(src, tmp) == nil
	}
	if !linked {
		data, err := afero.ReadFile(a.fs, src)
		if err != nil {
			return fmt.Errorf("failed to read zone file: %w", err)
		}
		if err := afero.WriteFile(a.fs, tmp, data, 0o644); err != nil {
			return fmt.Errorf("failed to write localtime: %w", err)
		}
	}

	if err := a.fs.Rename(tmp, a.localtimePath); err != nil {
		_ = a.fs.Remove(tmp)
		return fmt.Errorf("failed to replace localtime: %w", err)
	}
	log.Debug().Str("zone", zoneName).Str("target", src).Bool("symlink", linked).
		Msg("ostime: localtime replaced")

	if err := a.setenv("TZ", zoneName); err != nil {
		return fmt.Errorf("failed to set TZ: %w", err)
	}
	log.Info().Str("zone", zoneName).Msg("ostime: zone activated")
	return nil
}
