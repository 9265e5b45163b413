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
	"github.com/ZaparooProject/timekeeper/pkg/api/validation"
	"github.com/ZaparooProject/timekeeper/pkg/nitz"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/rs/zerolog/log"
)

// zoneLocation loads z for formatting, falling back to a fixed offset when
// the host has no rule file for it.
func zoneLocation(z zones.ZoneInfo) *time.Location {
	if z.Name == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(z.Name); err == nil {
		return loc
	}
	return time.FixedZone(z.Name, z.UTCOffsetMinutes*60)
}

//nolint:gocritic // single-use parameter in API handler
func HandleTime(env requests.RequestEnv) (any, error) {
	log.Debug().Msg("received time request")

	best := env.Registry.Best()
	now := env.Clock.Now().UTC()
	resp := models.TimeResponse{
		UTC:    now,
		Source: best.Tag,
		Offset: int64(best.Offset / time.Second),
	}

	z, ok := env.Coordinator.SelectedZone(env.Context)
	if !ok {
		z = env.Catalog.Failsafe()
	}
	resp.Zone = z.Name
	resp.Local = now.In(zoneLocation(z)).Format(models.LocalLayout)

	st, err := env.Coordinator.State(env.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to read nitz state: %w", err)
	}
	resp.Validity = st.Validity

	return resp, nil
}

//nolint:gocritic // single-use parameter in API handler
func HandleTimeSet(env requests.RequestEnv) (any, error) {
	log.Info().Msg("received time set request")

	var params models.TimeSetParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}
	utc, err := time.Parse(time.RFC3339, params.Time)
	if err != nil {
		return nil, validation.ErrInvalidParams
	}

	if err := env.Coordinator.ManualSetTime(env.Context, utc); err != nil {
		return nil, fmt.Errorf("failed to set time: %w", err)
	}
	return NoContent{}, nil
}

// HandleTimeNITZ feeds a network sample to the coordinator. This is how
// the modem bridge delivers NITZ reports.
//
//nolint:gocritic // single-use parameter in API handler
func HandleTimeNITZ(env requests.RequestEnv) (any, error) {
	var params models.NITZParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}

	now := env.Clock.Now()
	var s nitz.Sample
	if params.Raw != "" {
		var err error
		s, err = nitz.ParseNITZ(params.Raw, params.MCC, params.MNC, now)
		// A bad time still carries usable zone data.
		if err != nil && !s.ZoneValid {
			log.Warn().Err(err).Str("raw", params.Raw).Msg("rejected nitz sample")
			return nil, validation.ErrInvalidParams
		}
	} else {
		s = nitz.Sample{
			ReceivedAt:    now,
			Year:          params.Year,
			Month:         params.Month,
			Day:           params.Day,
			Hour:          params.Hour,
			Minute:        params.Minute,
			Second:        params.Second,
			OffsetMinutes: params.OffsetMinutes,
			MCC:           params.MCC,
			MNC:           params.MNC,
			DST:           params.DST,
			TimeValid:     params.TimeValid,
			ZoneValid:     params.ZoneValid,
			DSTValid:      params.DSTValid,
		}
	}

	if err := env.Coordinator.HandleSample(env.Context, s); err != nil {
		if errors.Is(err, nitz.ErrStaleSample) || errors.Is(err, nitz.ErrFutureSample) {
			return nil, err //nolint:wrapcheck // sentinel is the message
		}
		return nil, fmt.Errorf("failed to handle nitz sample: %w", err)
	}
	return NoContent{}, nil
}
