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
	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/models/requests"
	"github.com/ZaparooProject/timekeeper/pkg/api/validation"
	"github.com/ZaparooProject/timekeeper/pkg/tzrules"
	"github.com/rs/zerolog/log"
)

//nolint:gocritic // single-use parameter in API handler
func HandleRules(env requests.RequestEnv) (any, error) {
	var params models.RulesParams
	if err := validation.ValidateAndUnmarshalCtx(env.Context, env.Params, &params, zoneCtx(&env)); err != nil {
		return nil, err
	}
	log.Debug().Str("zone", params.Zone).Ints("years", params.Years).Msg("received rules request")

	return models.RulesResponse{
		Zone:  params.Zone,
		Rules: env.Rules.RulesFor(params.Zone, params.Years),
	}, nil
}

func transitionRule(p *models.TransitionRuleParams) *tzrules.TransitionRule {
	if p == nil {
		return nil
	}
	return &tzrules.TransitionRule{
		Month:     p.Month,
		DayOfWeek: p.DayOfWeek,
		Week:      p.Week,
		Hour:      p.Hour,
		Minute:    p.Minute,
	}
}

//nolint:gocritic // single-use parameter in API handler
func HandleRulesBias(env requests.RequestEnv) (any, error) {
	var params models.BiasParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}

	z, err := env.Rules.ZoneFromBias(tzrules.BiasDescriptor{
		Bias:         params.Bias,
		DaylightBias: params.DaylightBias,
		Standard:     transitionRule(params.Standard),
		Daylight:     transitionRule(params.Daylight),
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // sentinels describe the failure
	}
	return models.BiasResponse{Zone: z}, nil
}
