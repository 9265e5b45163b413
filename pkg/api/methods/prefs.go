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
	"fmt"
	"strconv"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/models/requests"
	"github.com/ZaparooProject/timekeeper/pkg/api/validation"
	"github.com/ZaparooProject/timekeeper/pkg/launch"
	"github.com/ZaparooProject/timekeeper/pkg/prefs"
	"github.com/rs/zerolog/log"
)

//nolint:gocritic // single-use parameter in API handler
func HandlePrefs(env requests.RequestEnv) (any, error) {
	var params models.PrefsGetParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}

	v, ok, err := env.Store.Get(env.Context, params.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read preference: %w", err)
	}
	return models.PrefResponse{Key: params.Key, Value: v, Set: ok}, nil
}

// HandlePrefsSet writes a preference and tells the coordinator about it.
// The zone is set through the coordinator so it is activated and
// announced like any other manual change.
//
//nolint:gocritic // single-use parameter in API handler
func HandlePrefsSet(env requests.RequestEnv) (any, error) {
	var params models.PrefsSetParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}
	log.Info().Str("key", params.Key).Str("value", params.Value).Msg("received preference update")

	switch params.Key {
	case prefs.KeyTimeZone:
		return HandleZoneSet(requests.RequestEnv{
			Context:     env.Context,
			Coordinator: env.Coordinator,
			Catalog:     env.Catalog,
			Params:      fmt.Appendf(nil, `{"zone":%s}`, strconv.Quote(params.Value)),
		})
	case prefs.KeyUseNetworkTime, prefs.KeyUseNetworkTimeZone, prefs.KeyUseManualTime:
		b, err := strconv.ParseBool(params.Value)
		if err != nil {
			return nil, validation.ErrInvalidParams
		}
		if err := prefs.SetBool(env.Context, env.Store, params.Key, b); err != nil {
			return nil, fmt.Errorf("failed to save preference: %w", err)
		}
	case prefs.KeyLaunchOnTimeChange:
		if _, err := launch.ParseList(params.Value); err != nil {
			log.Warn().Err(err).Msg("rejected launch list")
			return nil, validation.ErrInvalidParams
		}
		if err := env.Store.Set(env.Context, params.Key, params.Value); err != nil {
			return nil, fmt.Errorf("failed to save preference: %w", err)
		}
		return NoContent{}, nil
	}

	if err := env.Coordinator.PreferenceChanged(env.Context, params.Key); err != nil {
		return nil, fmt.Errorf("failed to apply preference: %w", err)
	}
	return NoContent{}, nil
}
