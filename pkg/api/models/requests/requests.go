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

package requests

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/clocks"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/metrics"
	"github.com/ZaparooProject/timekeeper/pkg/nitz"
	"github.com/ZaparooProject/timekeeper/pkg/prefs"
	"github.com/ZaparooProject/timekeeper/pkg/tzrules"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// NTPSyncer runs an on demand NTP query.
type NTPSyncer interface {
	Sync(ctx context.Context) (time.Duration, error)
}

type RequestEnv struct {
	Context     context.Context
	Config      *config.Instance
	Coordinator *nitz.Coordinator
	Registry    *clocks.Registry
	Broadcast   *clocks.BroadcastClock
	Rules       *tzrules.Service
	Catalog     *zones.Catalog
	Store       prefs.Store
	NTP         NTPSyncer
	Clock       clockwork.Clock
	Metrics     *metrics.Metrics
	Params      json.RawMessage
	ID          uuid.UUID
	IsLocal     bool
}
