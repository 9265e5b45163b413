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

// Package prefs persists the daemon's preferences as string key/value pairs.
// An absent key is not an error; callers fall back to their own default.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Preference keys written by the time pipelines.
const (
	KeyUseNetworkTime     = "useNetworkTime"
	KeyUseNetworkTimeZone = "useNetworkTimeZone"
	KeyTimeZone           = "timeZone"
	KeyNITZValidity       = "nitzValidity"
	KeyUseManualTime      = "useManualTime"
	KeyLaunchOnTimeChange = "launchOnTimeChange"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

var (
	ErrNotConnected   = errors.New("preference store is not connected")
	ErrUnknownBackend = errors.New("unknown preference store backend")
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Open creates the store for the named backend at path.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQLite(ctx, path)
	case BackendBolt:
		return OpenBolt(path)
	case BackendMemory:
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Bool reads a boolean preference, returning def when the key is absent or
// unparseable.
func Bool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil //nolint:nilerr // bad stored values fall back to default
	}
	return b, nil
}

func SetBool(ctx context.Context, s Store, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}

// String reads a preference, returning def when absent.
func String(ctx context.Context, s Store, key, def string) (string, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}
