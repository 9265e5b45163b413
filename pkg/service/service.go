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

// Package service wires the timekeeper components together and runs them
// until stopped.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api"
	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/models/requests"
	"github.com/ZaparooProject/timekeeper/pkg/api/notifications"
	"github.com/ZaparooProject/timekeeper/pkg/clocks"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/helpers"
	"github.com/ZaparooProject/timekeeper/pkg/helpers/command"
	"github.com/ZaparooProject/timekeeper/pkg/launch"
	"github.com/ZaparooProject/timekeeper/pkg/metrics"
	"github.com/ZaparooProject/timekeeper/pkg/nitz"
	"github.com/ZaparooProject/timekeeper/pkg/ntp"
	"github.com/ZaparooProject/timekeeper/pkg/ostime"
	"github.com/ZaparooProject/timekeeper/pkg/prefs"
	"github.com/ZaparooProject/timekeeper/pkg/service/broker"
	"github.com/ZaparooProject/timekeeper/pkg/service/discovery"
	"github.com/ZaparooProject/timekeeper/pkg/service/publishers"
	"github.com/ZaparooProject/timekeeper/pkg/tzrules"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	notificationQueueSize = 100
	subscriberBufferSize  = 100
)

// Options replaces the OS facing parts of the service. Zero values use
// the real implementations.
type Options struct {
	Exec        command.Executor
	SystemClock ostime.Clock
	Zones       ostime.ZoneActivator
	Clock       clockwork.Clock
	Fs          afero.Fs
	Dirs        helpers.Dirs
}

func (o Options) withDefaults() Options {
	if o.Exec == nil {
		o.Exec = &command.RealExecutor{}
	}
	if o.SystemClock == nil {
		o.SystemClock = ostime.SystemClock{}
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Dirs == (helpers.Dirs{}) {
		o.Dirs = helpers.DefaultDirs()
	}
	return o
}

// Service is a running timekeeper instance.
type Service struct {
	stopErr     error
	cancel      context.CancelFunc
	store       prefs.Store
	server      *api.Server
	broker      *broker.Broker
	discovery   *discovery.Service
	coordinator *nitz.Coordinator
	coordDone   chan struct{}
	publishers  []*publishers.MQTTPublisher
	env         requests.RequestEnv
	stopOnce    sync.Once
}

// Start runs the service with the real OS integrations and returns a
// function which stops it.
func Start(cfg *config.Instance, dirs helpers.Dirs) (stop func() error, err error) {
	svc, err := New(cfg, Options{Dirs: dirs})
	if err != nil {
		return nil, err
	}
	return svc.Stop, nil
}

// New builds every component and starts them. On error anything already
// started is stopped again.
func New(cfg *config.Instance, opts Options) (*Service, error) {
	log.Info().Msgf("version: %s", config.AppVersion)
	opts = opts.withDefaults()

	if _, ok := helpers.HasUserDir(); ok {
		log.Info().Msg("using 'user' directory for storage")
	}
	if err := helpers.EnsureDirectories(opts.Dirs); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cancel:    cancel,
		coordDone: make(chan struct{}),
	}

	if err := s.build(ctx, cfg, opts); err != nil {
		if stopErr := s.Stop(); stopErr != nil {
			log.Warn().Err(stopErr).Msg("error cleaning up after failed start")
		}
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context, cfg *config.Instance, opts Options) error {
	ns := make(chan models.Notification, notificationQueueSize)
	m := metrics.New(prometheus.NewRegistry())

	log.Info().Msg("loading zone catalog")
	catalog, err := zones.NewCatalog()
	if err != nil {
		return fmt.Errorf("failed to load zone catalog: %w", err)
	}

	registry := clocks.NewRegistry(opts.Clock, func(c clocks.Change) {
		notifications.ClocksChanged(ns, models.ClocksChangedPayload{
			Timestamp: c.Timestamp,
			Tag:       c.Tag,
			Priority:  c.Priority,
			Offset:    int64(c.Offset / time.Second),
		})
	})
	for tag, priority := range cfg.ClockPriorities() {
		if err := registry.Register(tag, priority, nil); err != nil {
			return fmt.Errorf("failed to register clock %s: %w", tag, err)
		}
	}

	ntpCmd, ntpArgs := cfg.NTPCommand()
	agent := ntp.NewAgent(opts.Exec, ntp.Config{
		Command: ntpCmd,
		Args:    ntpArgs,
		Marker:  cfg.NTPMarker(),
		Timeout: cfg.NTPTimeout(),
	}, func(offset time.Duration) {
		if err := registry.Update(clocks.TagNTP, offset); err != nil {
			log.Debug().Err(err).Msg("ntp clock source not registered")
		}
	}, m)

	storePath := cfg.StorePath(opts.Dirs.DataDir)
	log.Info().Str("backend", cfg.StoreBackend()).Str("path", storePath).Msg("opening preference store")
	s.store, err = prefs.Open(ctx, cfg.StoreBackend(), storePath)
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}

	rules := tzrules.NewService(opts.Fs, cfg.ZoneinfoSearchPaths(), catalog, opts.Clock)
	if cfg.WatchZoneinfo() {
		if err := rules.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("zoneinfo watcher failed to start, rules will not refresh")
		}
	}

	zoneActivator := opts.Zones
	if zoneActivator == nil {
		zoneActivator = ostime.NewFileActivator(opts.Fs, rules.Loader(), cfg.LocaltimePath())
	}

	broadcast := clocks.NewBroadcastClock(opts.Clock)
	coordinator := nitz.NewCoordinator(nitz.Deps{
		Config:        cfg,
		Store:         s.store,
		Catalog:       catalog,
		Registry:      registry,
		Broadcast:     broadcast,
		NTP:           agent,
		SystemClock:   opts.SystemClock,
		Zones:         zoneActivator,
		Launcher:      launch.NewCommandLauncher(opts.Exec, cfg.LaunchCommand()),
		Clock:         opts.Clock,
		Notifications: ns,
		Metrics:       m,
	})

	log.Info().Msg("starting nitz coordinator")
	s.coordinator = coordinator
	go func() {
		defer close(s.coordDone)
		if err := coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("nitz coordinator stopped")
		}
	}()

	s.broker = broker.New(ns)
	go s.broker.Run(ctx)

	s.env = requests.RequestEnv{
		Context:     ctx,
		Config:      cfg,
		Coordinator: coordinator,
		Registry:    registry,
		Broadcast:   broadcast,
		Rules:       rules,
		Catalog:     catalog,
		Store:       s.store,
		NTP:         agent,
		Clock:       opts.Clock,
		Metrics:     m,
	}

	log.Info().Msg("starting API service")
	apiNotifications, _ := s.broker.Subscribe(subscriberBufferSize)
	server := api.NewServer(cfg, s.env, apiNotifications)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	s.server = server

	log.Info().Msg("starting publishers")
	s.startPublishers(ctx, cfg)

	log.Info().Msg("starting mDNS discovery service")
	s.discovery = discovery.New(cfg, opts.Clock)
	if err := s.discovery.Start(); err != nil {
		log.Error().Err(err).Msg("mDNS discovery failed to start (continuing without discovery)")
	}

	log.Info().Msg("service fully initialized")
	return nil
}

// startPublishers starts every enabled MQTT publisher on its own broker
// subscription. A publisher that fails to start is skipped.
func (s *Service) startPublishers(ctx context.Context, cfg *config.Instance) {
	creds := config.AuthCreds()
	for _, pc := range cfg.MQTTPublishers() {
		if !publishers.Enabled(pc) {
			continue
		}
		log.Info().Msgf("starting MQTT publisher: %s (topic: %s)", pc.Broker, pc.Topic)
		p := publishers.NewMQTTPublisher(pc, cfg.DeviceID(), creds)
		notifs, id := s.broker.Subscribe(subscriberBufferSize)
		if err := p.Start(ctx, notifs); err != nil {
			log.Error().Err(err).Msgf("failed to start MQTT publisher for %s", pc.Broker)
			s.broker.Unsubscribe(id)
			continue
		}
		s.publishers = append(s.publishers, p)
	}
	if len(s.publishers) > 0 {
		log.Info().Msgf("started %d MQTT publisher(s)", len(s.publishers))
	}
}

// Env is the request environment the API serves from.
func (s *Service) Env() requests.RequestEnv {
	return s.env
}

// Server is the running API server.
func (s *Service) Server() *api.Server {
	return s.server
}

// Stop cancels the service context and waits for every component to
// finish. It is safe to call more than once.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		s.stopErr = s.cleanup()
	})
	return s.stopErr
}

// cleanup tears components down in reverse start order.
func (s *Service) cleanup() error {
	log.Info().Msg("service context cancelled, running cleanup")

	if s.discovery != nil {
		s.discovery.Stop()
	}
	for _, p := range s.publishers {
		p.Stop()
	}
	if s.server != nil {
		<-s.server.Done()
	}
	if s.broker != nil {
		<-s.broker.Done()
	}
	if s.coordinator != nil {
		<-s.coordDone
	}

	var err error
	if s.store != nil {
		if closeErr := s.store.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close preference store: %w", closeErr)
		}
	}
	log.Info().Msg("service cleanup completed")
	return err
}
