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

import "time"

var AppVersion = "DEVELOPMENT"

const (
	AppName           = "timekeeper"
	AppEnv            = "TIMEKEEPER_APP"
	SentryDSNEnv      = "TIMEKEEPER_SENTRY_DSN"
	UserDir           = "user"
	LogsDir           = "logs"
	LogFile           = "timekeeper.log"
	PidFile           = "timekeeper.pid"
	CfgFile           = "timekeeper.toml"
	AuthFile          = "auth.toml"
	PrefsSQLiteFile   = "prefs.db"
	PrefsBoltFile     = "prefs.bolt"
	APIRequestTimeout = 30 * time.Second
)
