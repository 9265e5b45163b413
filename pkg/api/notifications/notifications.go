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

package notifications

import (
	"encoding/json"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/rs/zerolog/log"
)

// sendNotification marshals payload and sends it without blocking. A full
// channel drops the notification.
func sendNotification(ns chan<- models.Notification, method string, payload any) {
	if ns == nil {
		return
	}

	var params json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("error marshalling notification")
			return
		}
		params = data
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification channel full, dropping")
	}
}

func TimeChanged(ns chan<- models.Notification, payload models.TimeChangedPayload) {
	sendNotification(ns, models.NotificationTimeChanged, payload)
}

func TimeValidity(ns chan<- models.Notification, payload models.ValidityPayload) {
	sendNotification(ns, models.NotificationTimeValidity, payload)
}

func ZoneChanged(ns chan<- models.Notification, payload models.ZoneChangedPayload) {
	sendNotification(ns, models.NotificationZoneChanged, payload)
}

func ClocksChanged(ns chan<- models.Notification, payload models.ClocksChangedPayload) {
	sendNotification(ns, models.NotificationClocksChanged, payload)
}
