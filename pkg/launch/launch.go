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

// Package launch notifies external apps when device time or zone changes.
// The list of apps is stored as a preference:
//
//	{"launchList":[{"appId":"com.example.clock","parameters":{"reason":"nitz"}}]}
package launch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/ZaparooProject/timekeeper/pkg/helpers/command"
	"github.com/ZaparooProject/timekeeper/pkg/prefs"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var ErrNoCommand = errors.New("no launcher command configured")

var (
	appIDRe       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	listValidator = newListValidator()
)

// ValidAppID reports whether id can be passed to a launcher as a single
// argument: reverse-DNS style names, no spaces or shell characters.
func ValidAppID(id string) bool {
	return appIDRe.MatchString(id)
}

func newListValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("appid", func(fl validator.FieldLevel) bool {
		return ValidAppID(fl.Field().String())
	})
	return v
}

type Entry struct {
	AppID      string          `json:"appId" validate:"required,appid"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type List struct {
	LaunchList []Entry `json:"launchList" validate:"dive"`
}

// Launcher starts one app. params is the entry's raw parameters object.
type Launcher interface {
	Launch(ctx context.Context, appID string, params json.RawMessage) error
}

// ParseList decodes and validates a stored launch list. Empty input is an
// empty list.
func ParseList(raw string) (List, error) {
	var l List
	if raw == "" {
		return l, nil
	}
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return List{}, fmt.Errorf("failed to parse launch list: %w", err)
	}
	if err := listValidator.Struct(&l); err != nil {
		return List{}, fmt.Errorf("invalid launch list: %w", err)
	}
	return l, nil
}

// FireAll reads the launch list from store and starts each entry. A failing
// entry is logged and does not stop the others. The number of apps
// successfully started is returned.
func FireAll(ctx context.Context, store prefs.Store, l Launcher) (int, error) {
	raw, ok, err := store.Get(ctx, prefs.KeyLaunchOnTimeChange)
	if err != nil {
		return 0, fmt.Errorf("failed to read launch list: %w", err)
	}
	if !ok {
		return 0, nil
	}
	list, err := ParseList(raw)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, e := range list.LaunchList {
		if err := l.Launch(ctx, e.AppID, e.Parameters); err != nil {
			log.Warn().Err(err).Str("app", e.AppID).Msg("launch: failed to start app")
			continue
		}
		started++
	}
	if started > 0 {
		log.Debug().Int("started", started).Msg("launch: time change consumers notified")
	}
	return started, nil
}

// CommandLauncher runs a helper command for each app:
//
//	<command> <appId> <parameters JSON>
type CommandLauncher struct {
	exec    command.Executor
	command string
}

func NewCommandLauncher(exec command.Executor, cmd string) *CommandLauncher {
	return &CommandLauncher{exec: exec, command: cmd}
}

func (c *CommandLauncher) Launch(ctx context.Context, appID string, params json.RawMessage) error {
	if c.command == "" {
		return ErrNoCommand
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	err := c.exec.StartWithOptions(ctx, command.StartOptions{
		Env:        []string{"TIMEKEEPER_EVENT=time_changed"},
		HideWindow: true,
	}, c.command, appID, string(params))
	if err != nil {
		return fmt.Errorf("failed to start launcher for %s: %w", appID, err)
	}
	return nil
}
