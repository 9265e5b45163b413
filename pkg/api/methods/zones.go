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

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/models/requests"
	"github.com/ZaparooProject/timekeeper/pkg/api/validation"
	"github.com/ZaparooProject/timekeeper/pkg/nitz"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/rs/zerolog/log"
)

// zoneCtx lets the zone validation tag check the catalog.
func zoneCtx(env *requests.RequestEnv) *validation.Context {
	return &validation.Context{
		ZoneExists: func(name string) bool {
			_, ok := env.Catalog.ResolveByName(name)
			return ok
		},
	}
}

//nolint:gocritic // single-use parameter in API handler
func HandleZone(env requests.RequestEnv) (any, error) {
	log.Debug().Msg("received zone request")

	z, ok := env.Coordinator.SelectedZone(env.Context)
	if !ok {
		z = env.Catalog.Failsafe()
	}
	abbr, _ := env.Clock.Now().In(zoneLocation(z)).Zone()
	return models.ZoneResponse{
		ZoneInfo:     z,
		Abbreviation: abbr,
		Selected:     ok,
	}, nil
}

//nolint:gocritic // single-use parameter in API handler
func HandleZoneSet(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received zone set request")

	var params models.ZoneSetParams
	if err := validation.ValidateAndUnmarshalCtx(env.Context, env.Params, &params, zoneCtx(&env)); err != nil {
		return nil, err
	}

	if err := env.Coordinator.ManualSetZone(env.Context, params.Zone); err != nil {
		if errors.Is(err, nitz.ErrUnknownZone) {
			return nil, validation.ErrInvalidParams
		}
		return nil, fmt.Errorf("failed to set zone: %w", err)
	}
	return NoContent{}, nil
}

// HandleZoneList lists the catalog, or only the zones at one offset.
//
//nolint:gocritic // single-use parameter in API handler
func HandleZoneList(env requests.RequestEnv) (any, error) {
	log.Debug().Msg("received zone list request")

	var params models.ZoneListParams
	if len(env.Params) > 0 {
		if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
			return nil, err
		}
	}

	if params.Offset != nil {
		list := env.Catalog.ZonesWithOffset(*params.Offset)
		if list == nil {
			list = []zones.ZoneInfo{}
		}
		return models.ZoneListResponse{Zones: list}, nil
	}
	return models.ZoneListResponse{Zones: env.Catalog.All()}, nil
}
