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

package nitz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/notifications"
	"github.com/ZaparooProject/timekeeper/pkg/clocks"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/helpers"
	"github.com/ZaparooProject/timekeeper/pkg/launch"
	"github.com/ZaparooProject/timekeeper/pkg/metrics"
	"github.com/ZaparooProject/timekeeper/pkg/ntp"
	"github.com/ZaparooProject/timekeeper/pkg/ostime"
	"github.com/ZaparooProject/timekeeper/pkg/prefs"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownZone = errors.New("unknown time zone")
	ErrNotRunning  = errors.New("nitz coordinator is not running")
)

// ResolutionManual is reported for zones chosen by the user.
const ResolutionManual = "manual"

// minStep is the smallest system clock change worth making.
const minStep = time.Second

// NTPSource is the part of the NTP agent the coordinator uses.
type NTPSource interface {
	Query() <-chan ntp.Result
	Sync(ctx context.Context) (time.Duration, error)
}

// Deps are the collaborators of a Coordinator. Broadcast, NTP, Zones,
// Launcher, Notifications, Metrics and AfterPass may be nil.
type Deps struct {
	Config        *config.Instance
	Store         prefs.Store
	Catalog       *zones.Catalog
	Registry      *clocks.Registry
	Broadcast     *clocks.BroadcastClock
	NTP           NTPSource
	SystemClock   ostime.Clock
	Zones         ostime.ZoneActivator
	Launcher      launch.Launcher
	Clock         clockwork.Clock
	Notifications chan<- models.Notification
	Metrics       *metrics.Metrics
	// AfterPass is called on the loop goroutine when a sample or retry
	// has been handled.
	AfterPass func(Kind, Outcome)
}

// State is a snapshot of the coordinator for the API.
type State struct {
	LastSample *Sample `json:"lastSample,omitempty"`
	Validity   string  `json:"validity"`
	Extensions int     `json:"retryExtensions"`
	RetryArmed bool    `json:"retryArmed"`
}

// cycle accumulates changes between the first sample and the retry that
// closes it.
type cycle struct {
	source      string
	timeDelta   time.Duration
	timeChanged bool
	zoneChanged bool
}

type event struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Coordinator owns the NITZ state machine. All state is touched only from
// the goroutine running Run; other goroutines go through Do.
type Coordinator struct {
	clock      clockwork.Clock
	timer      clockwork.Timer
	last       *Sample
	events     chan event
	stopped    chan struct{}
	cycle      cycle
	deps       Deps
	extensions int
	validity   Validity
}

func NewCoordinator(deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.SystemClock == nil {
		deps.SystemClock = ostime.SystemClock{}
	}
	return &Coordinator{
		deps:     deps,
		clock:    deps.Clock,
		events:   make(chan event),
		stopped:  make(chan struct{}),
		validity: defaultValidity,
	}
}

// Run loads persisted state and processes events until ctx is done. It
// must only be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)

	c.load(ctx)
	c.initialSync(ctx)

	log.Info().Str("validity", c.validity.String()).Msg("nitz: coordinator started")

	for {
		select {
		case <-ctx.Done():
			if c.timer != nil {
				c.timer.Stop()
				c.timer = nil
			}
			log.Info().Msg("nitz: coordinator stopped")
			return nil
		case ev := <-c.events:
			ev.fn(ctx)
			if ev.done != nil {
				close(ev.done)
			}
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish. If Do
// returns an error fn may still run later, so callers must not read values
// fn writes.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context)) error {
	ev := event{fn: fn, done: make(chan struct{})}
	select {
	case c.events <- ev:
	case <-ctx.Done():
		return fmt.Errorf("waiting for nitz loop: %w", ctx.Err())
	case <-c.stopped:
		return ErrNotRunning
	}
	select {
	case <-ev.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for nitz loop: %w", ctx.Err())
	case <-c.stopped:
		return ErrNotRunning
	}
}

// post queues fn without waiting for it. Used by timers and background
// queries.
func (c *Coordinator) post(fn func(ctx context.Context)) {
	select {
	case c.events <- event{fn: fn}:
	case <-c.stopped:
	}
}

// HandleSample runs the immediate pipeline for a new network sample and
// arms the retry timer. A zero ReceivedAt is taken as now.
func (c *Coordinator) HandleSample(ctx context.Context, s Sample) error {
	var err error
	if doErr := c.Do(ctx, func(ctx context.Context) {
		err = c.handleSample(ctx, s)
	}); doErr != nil {
		return doErr
	}
	return err
}

// HandleTimeout runs the retry pipeline now instead of waiting for the
// timer.
func (c *Coordinator) HandleTimeout(ctx context.Context) error {
	return c.Do(ctx, c.handleTimeout)
}

// ManualSetTime steps the system clock to utc on the user's behalf.
func (c *Coordinator) ManualSetTime(ctx context.Context, utc time.Time) error {
	var err error
	if doErr := c.Do(ctx, func(ctx context.Context) {
		err = c.manualSetTime(ctx, utc)
	}); doErr != nil {
		return doErr
	}
	return err
}

// ManualSetZone selects a zone by name on the user's behalf.
func (c *Coordinator) ManualSetZone(ctx context.Context, name string) error {
	var err error
	if doErr := c.Do(ctx, func(ctx context.Context) {
		err = c.manualSetZone(ctx, name)
	}); doErr != nil {
		return doErr
	}
	return err
}

// PreferenceChanged reacts to a preference written by someone else.
func (c *Coordinator) PreferenceChanged(ctx context.Context, key string) error {
	return c.Do(ctx, func(ctx context.Context) {
		c.preferenceChanged(ctx, key)
	})
}

func (c *Coordinator) State(ctx context.Context) (State, error) {
	var st State
	err := c.Do(ctx, func(context.Context) {
		st = State{
			Validity:   c.validity.String(),
			RetryArmed: c.timer != nil,
			Extensions: c.extensions,
		}
		if c.last != nil {
			s := *c.last
			st.LastSample = &s
		}
	})
	return st, err
}

// SelectedZone reads the persisted zone. It only touches the store and is
// safe from any goroutine.
func (c *Coordinator) SelectedZone(ctx context.Context) (zones.ZoneInfo, bool) {
	raw, ok, err := c.deps.Store.Get(ctx, prefs.KeyTimeZone)
	if err != nil {
		log.Warn().Err(err).Msg("nitz: failed to read selected zone")
		return zones.ZoneInfo{}, false
	}
	if !ok || raw == "" {
		return zones.ZoneInfo{}, false
	}
	var z zones.ZoneInfo
	if err := json.Unmarshal([]byte(raw), &z); err != nil || z.Name == "" {
		log.Warn().Err(err).Msg("nitz: ignoring malformed stored zone")
		return zones.ZoneInfo{}, false
	}
	return z, true
}

func (c *Coordinator) handleSample(ctx context.Context, s Sample) error {
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = c.clock.Now()
	}
	// Sample ages are measured across system time steps, which move the
	// wall clock but not the monotonic one, so only wall time is kept.
	s.ReceivedAt = s.ReceivedAt.Round(0)

	log.Info().
		Time("utc", s.UTC()).
		Int("offset", s.OffsetMinutes).
		Bool("dst", s.DST).
		Int("mcc", s.MCC).
		Bool("timeValid", s.TimeValid).
		Bool("zoneValid", s.ZoneValid).
		Bool("dstValid", s.DSTValid).
		Msg("nitz: sample received")

	p, err := c.runPipeline(ctx, KindImmediate, s)
	if errors.Is(err, ErrStaleSample) || errors.Is(err, ErrFutureSample) {
		return err
	}

	// The pass may have stepped the clock; keep the receipt time in step.
	s.ReceivedAt = s.ReceivedAt.Add(p.Outcome.TimeDelta)
	c.last = &s
	c.armRetry()
	c.afterPass(KindImmediate, p.Outcome)
	return nil
}

// armRetry starts the retry timer, or pushes an armed one back. A cycle
// only extends a limited number of times so a chatty network can't delay
// the retry forever.
func (c *Coordinator) armRetry() {
	timeout := c.deps.Config.NITZRetryTimeout()
	if c.timer == nil {
		c.timer = c.clock.AfterFunc(timeout, c.onRetryTimer)
		c.deps.Metrics.SetRetryArmed(true)
		log.Debug().Dur("timeout", timeout).Msg("nitz: retry armed")
		return
	}

	if c.extensions >= c.deps.Config.NITZMaxRetryExtensions() {
		log.Debug().Int("extensions", c.extensions).Msg("nitz: retry extension limit reached")
		return
	}
	if c.timer.Stop() {
		c.timer.Reset(timeout)
		c.extensions++
		log.Debug().Int("extensions", c.extensions).Msg("nitz: retry extended")
	}
}

func (c *Coordinator) onRetryTimer() {
	c.post(c.handleTimeout)
}

func (c *Coordinator) handleTimeout(ctx context.Context) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.extensions = 0
	c.deps.Metrics.SetRetryArmed(false)
	defer func() { c.cycle = cycle{} }()

	autoTime, autoZone := c.autoFlags(ctx)
	if !autoTime && !autoZone {
		log.Info().Msg("nitz: automatic time and zone disabled, ending retry cycle")
		c.afterPass(KindTimeout, Outcome{})
		return
	}
	if c.last == nil {
		c.afterPass(KindTimeout, Outcome{})
		return
	}

	p, err := c.runPipeline(ctx, KindTimeout, *c.last)
	if err == nil {
		o := p.Outcome
		c.setValidity(ctx, c.validity.Next(o.TimeValid || o.ZoneValid || o.DSTValid))
	}

	if c.cycle.timeChanged || c.cycle.zoneChanged {
		c.publishTimeChanged(ctx, c.cycle.source, c.cycle.timeDelta)
		c.fireLaunch(ctx)
	}
	c.afterPass(KindTimeout, p.Outcome)
}

func (c *Coordinator) manualSetTime(ctx context.Context, utc time.Time) error {
	delta, err := c.stepSystemTime(utc)
	if err != nil {
		return err
	}
	if err := c.deps.Registry.Update(clocks.TagManual, 0); err != nil {
		return fmt.Errorf("failed to update manual clock: %w", err)
	}
	c.setValidity(ctx, c.validity.AfterManualSet())

	log.Info().Time("utc", utc).Dur("delta", delta).Msg("nitz: time set manually")
	c.publishTimeChanged(ctx, clocks.TagManual, delta)
	c.fireLaunch(ctx)
	return nil
}

func (c *Coordinator) manualSetZone(ctx context.Context, name string) error {
	z, ok := c.deps.Catalog.ResolveByName(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	changed, err := c.applyZone(ctx, z, ResolutionManual)
	if err != nil {
		return err
	}
	if changed {
		c.publishTimeChanged(ctx, clocks.TagManual, 0)
		c.fireLaunch(ctx)
	}
	return nil
}

func (c *Coordinator) preferenceChanged(ctx context.Context, key string) {
	switch key {
	case prefs.KeyUseNetworkTime, prefs.KeyUseNetworkTimeZone:
		enabled, err := prefs.Bool(ctx, c.deps.Store, key, true)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("nitz: failed to read preference")
			return
		}
		if !enabled || c.last == nil {
			return
		}
		log.Debug().Str("key", key).Msg("nitz: automatic mode enabled, re-running last sample")
		if err := c.handleSample(ctx, *c.last); err != nil {
			log.Info().Err(err).Msg("nitz: last sample no longer usable")
		}
	case prefs.KeyUseManualTime:
		enabled, err := prefs.Bool(ctx, c.deps.Store, key, false)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("nitz: failed to read preference")
			return
		}
		c.deps.Registry.SetManualOverrideEnabled(enabled)
	case prefs.KeyTimeZone:
		if z, ok := c.SelectedZone(ctx); ok {
			c.activateZone(z.Name)
		}
	}
}

// load restores persisted state before the loop starts.
func (c *Coordinator) load(ctx context.Context) {
	raw, ok, err := c.deps.Store.Get(ctx, prefs.KeyNITZValidity)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("nitz: failed to read validity")
	case ok:
		if v, known := ParseValidity(raw); known {
			c.validity = v
		} else {
			log.Warn().Str("validity", raw).Msg("nitz: unknown stored validity")
		}
	}
	c.deps.Metrics.SetValidity(int(c.validity))

	manual, err := prefs.Bool(ctx, c.deps.Store, prefs.KeyUseManualTime, false)
	if err != nil {
		log.Warn().Err(err).Msg("nitz: failed to read manual time preference")
	}
	c.deps.Registry.SetManualOverrideEnabled(manual)

	if z, ok := c.SelectedZone(ctx); ok {
		c.activateZone(z.Name)
	}
}

// initialSync asks NTP for the time when the clock is obviously wrong, such
// as a device booting without an RTC.
func (c *Coordinator) initialSync(ctx context.Context) {
	now := c.clock.Now()
	if helpers.IsClockReliable(now) || c.deps.NTP == nil {
		return
	}
	if !FeaturesFromConfig(c.deps.Config).Has(FeatureAllowNTP) {
		return
	}
	if autoTime, _ := c.autoFlags(ctx); !autoTime {
		return
	}

	log.Info().Time("now", now).Msg("nitz: system clock looks unset, querying ntp")
	ch := c.deps.NTP.Query()
	go func() {
		r := <-ch
		c.post(func(ctx context.Context) {
			c.applyInitialSync(ctx, r)
		})
	}()
}

func (c *Coordinator) applyInitialSync(ctx context.Context, r ntp.Result) {
	if r.Err != nil {
		log.Warn().Err(r.Err).Msg("nitz: startup ntp query failed")
		return
	}
	if autoTime, _ := c.autoFlags(ctx); !autoTime {
		return
	}
	delta := c.stepOrLog(c.clock.Now().Add(r.Offset), clocks.TagNTP)
	if delta != 0 {
		c.publishTimeChanged(ctx, clocks.TagNTP, delta)
		c.fireLaunch(ctx)
	}
}

func (c *Coordinator) autoFlags(ctx context.Context) (autoTime, autoZone bool) {
	var err error
	autoTime, err = prefs.Bool(ctx, c.deps.Store, prefs.KeyUseNetworkTime, true)
	if err != nil {
		log.Warn().Err(err).Msg("nitz: failed to read network time preference")
	}
	autoZone, err = prefs.Bool(ctx, c.deps.Store, prefs.KeyUseNetworkTimeZone, true)
	if err != nil {
		log.Warn().Err(err).Msg("nitz: failed to read network zone preference")
	}
	return autoTime, autoZone
}

// stepSystemTime sets the system clock to target and shifts every clock
// offset so their absolute times are unchanged. Steps under a second are
// skipped and report a zero delta.
func (c *Coordinator) stepSystemTime(target time.Time) (time.Duration, error) {
	now := c.clock.Now()
	delta := target.Sub(now)
	if delta > -minStep && delta < minStep {
		return 0, nil
	}

	secs := target.Unix()
	if err := c.deps.SystemClock.SetSystemClock(secs); err != nil {
		return 0, fmt.Errorf("failed to set system clock: %w", err)
	}
	delta = time.Unix(secs, 0).Sub(now)

	c.deps.Registry.AdjustAll(delta)
	if c.deps.Broadcast != nil {
		c.deps.Broadcast.Adjust(delta)
	}
	if c.last != nil {
		c.last.ReceivedAt = c.last.ReceivedAt.Add(delta)
	}
	c.deps.Metrics.TimeStepped()

	log.Info().Time("utc", time.Unix(secs, 0).UTC()).Dur("delta", delta).Msg("nitz: system time stepped")
	return delta, nil
}

func (c *Coordinator) stepOrLog(target time.Time, source string) time.Duration {
	delta, err := c.stepSystemTime(target)
	if err != nil {
		log.Warn().Err(err).Str("source", source).Msg("nitz: could not step system time")
		return 0
	}
	return delta
}

// applyZone persists and activates z when it differs from the current
// selection.
func (c *Coordinator) applyZone(ctx context.Context, z zones.ZoneInfo, resolution string) (bool, error) {
	prev, _ := c.SelectedZone(ctx)
	if prev.Name == z.Name {
		return false, nil
	}

	data, err := json.Marshal(z)
	if err != nil {
		return false, fmt.Errorf("failed to marshal zone: %w", err)
	}
	if err := c.deps.Store.Set(ctx, prefs.KeyTimeZone, string(data)); err != nil {
		return false, fmt.Errorf("failed to persist zone: %w", err)
	}
	c.activateZone(z.Name)

	log.Info().
		Str("zone", z.Name).
		Str("previous", prev.Name).
		Str("resolution", resolution).
		Msg("nitz: time zone changed")
	c.deps.Metrics.ZoneChanged()
	notifications.ZoneChanged(c.deps.Notifications, models.ZoneChangedPayload{
		Zone:       z,
		Previous:   prev.Name,
		Resolution: resolution,
	})
	return true, nil
}

func (c *Coordinator) activateZone(name string) {
	if c.deps.Zones == nil {
		return
	}
	if err := c.deps.Zones.Activate(name); err != nil {
		log.Warn().Err(err).Str("zone", name).Msg("nitz: failed to activate zone")
	}
}

func (c *Coordinator) setValidity(ctx context.Context, v Validity) {
	if v == c.validity {
		return
	}
	prev := c.validity
	c.validity = v
	if err := c.deps.Store.Set(ctx, prefs.KeyNITZValidity, v.String()); err != nil {
		log.Warn().Err(err).Msg("nitz: failed to persist validity")
	}
	c.deps.Metrics.SetValidity(int(v))

	log.Info().Str("validity", v.String()).Str("previous", prev.String()).Msg("nitz: validity changed")
	notifications.TimeValidity(c.deps.Notifications, models.ValidityPayload{
		Validity: v.String(),
		Previous: prev.String(),
	})
}

func (c *Coordinator) publishTimeChanged(ctx context.Context, source string, delta time.Duration) {
	z, _ := c.SelectedZone(ctx)
	notifications.TimeChanged(c.deps.Notifications, models.TimeChangedPayload{
		Time:   c.clock.Now().UTC(),
		Zone:   z.Name,
		Source: source,
		Delta:  int64(delta / time.Second),
	})
}

func (c *Coordinator) fireLaunch(ctx context.Context) {
	if c.deps.Launcher == nil {
		return
	}
	if _, err := launch.FireAll(ctx, c.deps.Store, c.deps.Launcher); err != nil {
		log.Warn().Err(err).Msg("nitz: failed to notify time change consumers")
	}
}

func (c *Coordinator) afterPass(kind Kind, o Outcome) {
	if c.deps.AfterPass != nil {
		c.deps.AfterPass(kind, o)
	}
}
