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

// Package ostime wraps the operating system primitives used to step the
// system clock and activate a time zone.
package ostime

import (
	"errors"
	"time"
)

var ErrUnsupported = errors.New("setting the system clock is not supported on this platform")

// Clock steps the system clock.
type Clock interface {
	SetSystemClock(utcSeconds int64) error
}

// SystemClock sets the real system clock. The process needs CAP_SYS_TIME
// or equivalent privileges.
type SystemClock struct{}

func (SystemClock) SetSystemClock(utcSeconds int64) error {
	return setSystemTime(time.Unix(utcSeconds, 0))
}
