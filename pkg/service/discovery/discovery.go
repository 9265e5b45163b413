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

// Package discovery advertises the API over mDNS so clients on the local
// network can find the service without configuration.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ServiceType is the DNS-SD service type.
const ServiceType = "_zaparoo-time._tcp"

const (
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

var errNoInterfaces = errors.New("no suitable network interfaces")

// virtualInterfacePrefixes are container and VPN interfaces that should
// not be advertised on.
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

// shutdowner is the part of *zeroconf.Server the service uses.
type shutdowner interface {
	Shutdown()
}

type registerFunc func(instance string, port int, txt []string, ifaces []net.Interface) (shutdowner, error)

func zeroconfRegister(instance string, port int, txt []string, ifaces []net.Interface) (shutdowner, error) {
	s, err := zeroconf.Register(instance, ServiceType, "local.", port, txt, ifaces)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	return s, nil
}

// filterInterfaces keeps interfaces that are up, multicast capable, not
// loopback and not virtual.
func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var out []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 ||
			isVirtualInterface(iface.Name) {
			continue
		}
		out = append(out, iface)
	}
	return out
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Service advertises one mDNS instance. If the network is not ready at
// startup it keeps retrying in the background for a while.
type Service struct {
	server     shutdowner
	cfg        *config.Instance
	clock      clockwork.Clock
	register   registerFunc
	interfaces func() ([]net.Interface, error)
	hostname   func() (string, error)
	cancel     context.CancelFunc
	retryDone  chan struct{}
	instance   string
	stopped    bool
	mu         syncutil.Mutex
}

func New(cfg *config.Instance, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		cfg:        cfg,
		clock:      clock,
		register:   zeroconfRegister,
		interfaces: net.Interfaces,
		hostname:   os.Hostname,
	}
}

// Start registers the service. A registration failure is not an error,
// it starts the retry loop instead.
func (s *Service) Start() error {
	if !s.cfg.DiscoveryEnabled() {
		log.Info().Msg("discovery: disabled by configuration")
		return nil
	}

	s.instance = s.resolveInstanceName()
	err := s.tryRegister()
	if err == nil {
		return nil
	}
	log.Info().
		Err(err).
		Dur("interval", retryInterval).
		Msg("discovery: registration failed, retrying in background")

	ctx, cancel := context.WithTimeout(context.Background(), maxRetryDuration)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.retryDone = done
	s.mu.Unlock()
	go s.retryLoop(ctx, done)
	return nil
}

// TXT returns the advertised TXT records.
func (s *Service) TXT() []string {
	return []string{
		"id=" + s.cfg.DeviceID(),
		"version=" + config.AppVersion,
		"path=/api",
	}
}

func (s *Service) tryRegister() error {
	all, err := s.interfaces()
	if err != nil {
		return fmt.Errorf("list network interfaces: %w", err)
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		return errNoInterfaces
	}

	port := s.cfg.APIPort()
	server, err := s.register(s.instance, port, s.TXT(), ifaces)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		server.Shutdown()
		return nil
	}
	s.server = server
	s.mu.Unlock()

	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}
	log.Info().
		Str("instance", s.instance).
		Str("type", ServiceType).
		Int("port", port).
		Strs("interfaces", names).
		Msg("discovery: advertising")
	return nil
}

func (s *Service) retryLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := s.clock.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			err := s.tryRegister()
			if err == nil {
				return
			}
			log.Debug().Err(err).Msg("discovery: retry failed")
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Warn().Msg("discovery: giving up, service will not be advertised")
			}
			return
		}
	}
}

// Stop sends goodbye packets and stops any retries. It is safe to call
// more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.retryDone
	s.cancel = nil
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if server != nil {
		log.Debug().Msg("discovery: stopping advertisement")
		server.Shutdown()
	}
}

// InstanceName is the advertised name once Start has run.
func (s *Service) InstanceName() string {
	return s.instance
}

// resolveInstanceName prefers the configured name, then the hostname,
// then a name derived from the device id.
func (s *Service) resolveInstanceName() string {
	if name := s.cfg.DiscoveryInstanceName(); name != "" {
		return name
	}
	if host, err := s.hostname(); err == nil && host != "" {
		return host + "-time"
	}
	if id := s.cfg.DeviceID(); len(id) >= 8 {
		return "timekeeper-" + id[:8]
	}
	return "timekeeper"
}
