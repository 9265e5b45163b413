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

package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeServer struct {
	mu       sync.Mutex
	shutdown int
}

func (f *fakeServer) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown++
}

func (f *fakeServer) shutdowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdown
}

var (
	eth0   = net.Interface{Index: 2, Name: "eth0", Flags: net.FlagUp | net.FlagMulticast}
	lo     = net.Interface{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast}
	docker = net.Interface{Index: 3, Name: "docker0", Flags: net.FlagUp | net.FlagMulticast}
	down   = net.Interface{Index: 4, Name: "wlan0", Flags: net.FlagMulticast}
)

func newTestService(t *testing.T, vals config.Values, clock clockwork.Clock) *Service {
	t.Helper()
	cfg, err := config.NewConfig(t.TempDir(), vals)
	require.NoError(t, err)
	s := New(cfg, clock)
	s.hostname = func() (string, error) { return "kitchen", nil }
	s.interfaces = func() ([]net.Interface, error) { return []net.Interface{lo, eth0, docker}, nil }
	return s
}

func TestFilterInterfaces(t *testing.T) {
	t.Parallel()

	got := filterInterfaces([]net.Interface{lo, eth0, docker, down})
	require.Len(t, got, 1)
	assert.Equal(t, "eth0", got[0].Name)
}

func TestIsVirtualInterface(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"docker0", "br-1a2b", "veth9", "WG0", "virbr0", "cali123"} {
		assert.True(t, isVirtualInterface(name), name)
	}
	for _, name := range []string{"eth0", "wlan0", "enp3s0"} {
		assert.False(t, isVirtualInterface(name), name)
	}
}

func TestResolveInstanceName(t *testing.T) {
	t.Parallel()

	vals := config.BaseDefaults
	vals.Service.Discovery.InstanceName = "Hall Clock"
	s := newTestService(t, vals, nil)
	assert.Equal(t, "Hall Clock", s.resolveInstanceName())

	s = newTestService(t, config.BaseDefaults, nil)
	assert.Equal(t, "kitchen-time", s.resolveInstanceName())

	s.hostname = func() (string, error) { return "", errors.New("no hostname") }
	assert.Contains(t, s.resolveInstanceName(), "timekeeper")
}

func TestStart_Registers(t *testing.T) {
	t.Parallel()

	s := newTestService(t, config.BaseDefaults, nil)
	srv := &fakeServer{}
	var gotPort int
	var gotTXT []string
	var gotIfaces []net.Interface
	s.register = func(instance string, port int, txt []string, ifaces []net.Interface) (shutdowner, error) {
		gotPort, gotTXT, gotIfaces = port, txt, ifaces
		return srv, nil
	}

	require.NoError(t, s.Start())
	assert.Equal(t, "kitchen-time", s.InstanceName())
	assert.Equal(t, config.DefaultAPIPort, gotPort)
	assert.Contains(t, gotTXT, "version="+config.AppVersion)
	assert.Contains(t, gotTXT, "path=/api")
	require.Len(t, gotIfaces, 1)
	assert.Equal(t, "eth0", gotIfaces[0].Name)

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, srv.shutdowns())
}

func TestStart_Disabled(t *testing.T) {
	t.Parallel()

	off := false
	vals := config.BaseDefaults
	vals.Service.Discovery.Enabled = &off
	s := newTestService(t, vals, nil)
	s.register = func(string, int, []string, []net.Interface) (shutdowner, error) {
		t.Fatal("register called while disabled")
		return nil, nil
	}
	require.NoError(t, s.Start())
	s.Stop()
}

func TestStart_RetriesUntilNetworkIsUp(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := newTestService(t, config.BaseDefaults, clock)

	var mu sync.Mutex
	up := false
	s.interfaces = func() ([]net.Interface, error) {
		mu.Lock()
		defer mu.Unlock()
		if !up {
			return []net.Interface{lo}, nil
		}
		return []net.Interface{eth0}, nil
	}
	srv := &fakeServer{}
	registered := make(chan struct{}, 1)
	s.register = func(string, int, []string, []net.Interface) (shutdowner, error) {
		registered <- struct{}{}
		return srv, nil
	}

	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	mu.Lock()
	up = true
	mu.Unlock()
	clock.Advance(retryInterval)

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("retry did not register")
	}

	s.Stop()
	assert.Equal(t, 1, srv.shutdowns())
}

func TestStop_CancelsRetry(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := newTestService(t, config.BaseDefaults, clock)
	s.interfaces = func() ([]net.Interface, error) { return nil, errors.New("netlink unavailable") }

	require.NoError(t, s.Start())
	s.Stop()
	assert.Nil(t, s.server)
}
