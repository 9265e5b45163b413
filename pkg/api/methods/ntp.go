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

package methods

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/models/requests"
	"github.com/rs/zerolog/log"
)

var ErrNTPDisabled = errors.New("ntp is not configured")

// HandleNTPSync queries NTP now. The result updates the ntp clock source;
// the system clock is left to the time pipelines.
//
//nolint:gocritic // single-use parameter in API handler
func HandleNTPSync(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received ntp sync request")

	if env.NTP == nil {
		return nil, ErrNTPDisabled
	}
	offset, err := env.NTP.Sync(env.Context)
	if err != nil {
		return nil, fmt.Errorf("ntp query failed: %w", err)
	}
	return models.NTPSyncResponse{
		Offset:  int64(offset / time.Second),
		Applied: true,
	}, nil
}
