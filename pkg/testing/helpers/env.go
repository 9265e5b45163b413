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

// Package helpers builds fully wired test environments for API and
// service tests.
package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/models/requests"
	"github.com/ZaparooProject/timekeeper/pkg/clocks"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/nitz"
	"github.com/ZaparooProject/timekeeper/pkg/ntp"
	"github.com/ZaparooProject/timekeeper/pkg/prefs"
	"github.com/ZaparooProject/timekeeper/pkg/testing/fixtures"
	"github.com/ZaparooProject/timekeeper/pkg/testing/mocks"
	"github.com/ZaparooProject/timekeeper/pkg/tzrules"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestNow is the fake clock's start time. It is a reliable clock so no
// startup NTP query is made.
var TestNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// TestEnv is a running coordinator with every collaborator faked.
type TestEnv struct {
	Env           requests.RequestEnv
	Config        *config.Instance
	Clock         *clockwork.FakeClock
	SystemClock   *mocks.FakeSystemClock
	Zones         *mocks.FakeZoneActivator
	Store         *prefs.MemStore
	Exec          *mocks.MockCommandExecutor
	Launcher      *mocks.MockLauncher
	Coordinator   *nitz.Coordinator
	Registry      *clocks.Registry
	Notifications chan models.Notification
}

// NewTestEnv starts a coordinator that stops when the test ends.
func NewTestEnv(t *testing.T, vals config.Values) *TestEnv {
	t.Helper()

	cfg, err := config.NewConfig(t.TempDir(), vals)
	require.NoError(t, err)
	catalog, err := zones.NewCatalog()
	require.NoError(t, err)

	e := &TestEnv{
		Config:        cfg,
		Clock:         clockwork.NewFakeClockAt(TestNow),
		Zones:         &mocks.FakeZoneActivator{},
		Store:         prefs.NewMemStore(),
		Exec:          &mocks.MockCommandExecutor{},
		Launcher:      &mocks.MockLauncher{},
		Notifications: make(chan models.Notification, 64),
	}
	e.SystemClock = mocks.NewFakeSystemClock(e.Clock)
	e.Registry = clocks.NewRegistry(e.Clock, nil)
	for tag, p := range cfg.ClockPriorities() {
		require.NoError(t, e.Registry.Register(tag, p, nil))
	}
	broadcast := clocks.NewBroadcastClock(e.Clock)
	agent := ntp.NewAgent(e.Exec, ntp.Config{}, func(off time.Duration) {
		_ = e.Registry.Update(clocks.TagNTP, off)
	}, nil)
	rules := tzrules.NewService(fixtures.NewZoneinfoFs(), []string{fixtures.ZoneinfoRoot}, catalog, e.Clock)

	e.Coordinator = nitz.NewCoordinator(nitz.Deps{
		Config:        cfg,
		Store:         e.Store,
		Catalog:       catalog,
		Registry:      e.Registry,
		Broadcast:     broadcast,
		NTP:           agent,
		SystemClock:   e.SystemClock,
		Zones:         e.Zones,
		Launcher:      e.Launcher,
		Clock:         e.Clock,
		Notifications: e.Notifications,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Coordinator.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	e.Env = requests.RequestEnv{
		Context:     ctx,
		Config:      cfg,
		Coordinator: e.Coordinator,
		Registry:    e.Registry,
		Broadcast:   broadcast,
		Rules:       rules,
		Catalog:     catalog,
		Store:       e.Store,
		NTP:         agent,
		Clock:       e.Clock,
	}
	return e
}

// WithParams returns a copy of the request environment carrying params.
func (e *TestEnv) WithParams(params string) requests.RequestEnv {
	env := e.Env
	if params != "" {
		env.Params = []byte(params)
	}
	return env
}

// NTPOffset makes the NTP helper report seconds of offset.
func (e *TestEnv) NTPOffset(seconds string) *mock.Call {
	return e.Exec.On("Output", mock.Anything, ntp.DefaultCommand, ntp.DefaultArgs).
		Return([]byte("adjust time server 192.0.2.1 offset "+seconds+" sec"), nil)
}

// Drain returns every queued notification.
func (e *TestEnv) Drain() []models.Notification {
	var out []models.Notification
	for {
		select {
		case n := <-e.Notifications:
			out = append(out, n)
		default:
			return out
		}
	}
}
