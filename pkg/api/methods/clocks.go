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
	"github.com/ZaparooProject/timekeeper/pkg/clocks"
	"github.com/rs/zerolog/log"
)

// HandleClocks lists the registered sources. With a tag it also resolves
// that source's time the way time consumers do.
//
//nolint:gocritic // single-use parameter in API handler
func HandleClocks(env requests.RequestEnv) (any, error) {
	log.Debug().Msg("received clocks request")

	var params models.ClocksParams
	if len(env.Params) > 0 {
		if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
			return nil, err
		}
	}

	entries := env.Registry.Entries()
	resp := models.ClocksResponse{
		Entries:        make([]models.ClockEntryResponse, 0, len(entries)),
		ManualOverride: env.Registry.ManualOverrideEnabled(),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, models.NewClockEntryResponse(e))
	}

	var rd clocks.Reading
	if params.Tag == "" {
		rd = env.Registry.Best()
	} else {
		var err error
		rd, err = env.Registry.Query(params.Tag, params.ManualOverride, params.Fallback)
		if err != nil {
			return nil, err //nolint:wrapcheck // sentinel carries the tag
		}
	}
	resp.Reading = &models.ClockReadingResponse{
		Time:   rd.Time.UTC(),
		Tag:    rd.Tag,
		Offset: int64(rd.Offset / time.Second),
	}
	return resp, nil
}

//nolint:gocritic // single-use parameter in API handler
func HandleClocksRegister(env requests.RequestEnv) (any, error) {
	var params models.ClockRegisterParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}
	log.Info().Str("tag", params.Tag).Int("priority", params.Priority).Msg("received clock register request")

	var offset *time.Duration
	if params.Offset != nil {
		d, err := time.ParseDuration(*params.Offset)
		if err != nil {
			return nil, validation.ErrInvalidParams
		}
		offset = &d
	}

	if err := env.Registry.Register(params.Tag, params.Priority, offset); err != nil {
		if errors.Is(err, clocks.ErrReservedTag) {
			return nil, validation.ErrInvalidParams
		}
		return nil, fmt.Errorf("failed to register clock: %w", err)
	}
	return NoContent{}, nil
}

//nolint:gocritic // single-use parameter in API handler
func HandleClocksUpdate(env requests.RequestEnv) (any, error) {
	var params models.ClockUpdateParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}
	offset, err := time.ParseDuration(params.Offset)
	if err != nil {
		return nil, validation.ErrInvalidParams
	}

	if err := env.Registry.Update(params.Tag, offset); err != nil {
		return nil, err //nolint:wrapcheck // sentinel carries the tag
	}
	return NoContent{}, nil
}

//nolint:gocritic // single-use parameter in API handler
func HandleBroadcast(env requests.RequestEnv) (any, error) {
	utc, local, err := env.Broadcast.Get()
	if err != nil {
		return nil, err //nolint:wrapcheck // ErrNotSet is the message
	}
	seq, _ := env.Broadcast.Sequence()
	return models.BroadcastResponse{
		UTC:      utc,
		Local:    local.Format(models.LocalLayout),
		Sequence: seq,
	}, nil
}

// HandleBroadcastSet stores an over-the-air clock reading. Out of order
// updates are not errors, they report Accepted false.
//
//nolint:gocritic // single-use parameter in API handler
func HandleBroadcastSet(env requests.RequestEnv) (any, error) {
	var params models.BroadcastSetParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}
	utc, err := time.Parse(time.RFC3339, params.UTC)
	if err != nil {
		return nil, validation.ErrInvalidParams
	}
	local, err := time.Parse(time.RFC3339, params.Local)
	if err != nil {
		return nil, validation.ErrInvalidParams
	}

	accepted := env.Broadcast.Set(utc, local, params.Seq)
	log.Debug().Int64("seq", params.Seq).Bool("accepted", accepted).Msg("received broadcast time")
	return models.BroadcastSetResponse{Accepted: accepted}, nil
}
