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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/notifications"
	"github.com/ZaparooProject/timekeeper/pkg/clocks"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/rs/zerolog/log"
)

var (
	ErrStaleSample  = errors.New("NITZ sample is too old")
	ErrFutureSample = errors.New("NITZ sample is from the future")
)

// Kind says which pipeline a pass belongs to.
type Kind int

const (
	KindImmediate Kind = iota
	KindTimeout
)

func (k Kind) String() string {
	if k == KindTimeout {
		return "timeout"
	}
	return "immediate"
}

// Outcome collects what a pass did.
type Outcome struct {
	Zone        zones.ZoneInfo
	Source      string
	Corrections []string
	TimeDelta   time.Duration
	Resolution  zones.Resolution
	TimeSet     bool
	ZoneChanged bool
	TimeValid   bool
	ZoneValid   bool
	DSTValid    bool
}

// pass is threaded through the stages by value. Each stage returns the
// updated copy.
type pass struct {
	Outcome  Outcome
	Sample   Sample
	Kind     Kind
	Features Features
	AutoTime bool
	AutoZone bool
}

type stage struct {
	run  func(ctx context.Context, p pass) (pass, error)
	name string
}

func (c *Coordinator) stages() []stage {
	return []stage{
		{name: "entry", run: c.entry},
		{name: "time", run: c.timeValue},
		{name: "offset", run: c.offsetValue},
		{name: "dst", run: c.dstValue},
		{name: "exit", run: c.exit},
	}
}

// runPipeline runs every stage in order. The first error aborts the rest
// of the pass; the pass as it stood is returned with the error.
func (c *Coordinator) runPipeline(ctx context.Context, kind Kind, s Sample) (pass, error) {
	p := pass{Kind: kind, Sample: s}
	for _, st := range c.stages() {
		next, err := st.run(ctx, p)
		if err != nil {
			log.Warn().
				Err(err).
				Str("stage", st.name).
				Str("pipeline", kind.String()).
				Msg("nitz: pass aborted")
			c.deps.Metrics.StageAbort(st.name)
			return p, err
		}
		p = next
	}
	return p, nil
}

// entry refreshes features and auto flags and checks the sample is fresh.
// A stale sample is rejected on arrival; on retry its time is no longer
// trusted but its zone data still is.
func (c *Coordinator) entry(ctx context.Context, p pass) (pass, error) {
	p.Features = FeaturesFromConfig(c.deps.Config)
	p.AutoTime, p.AutoZone = c.autoFlags(ctx)

	age := c.clock.Now().Sub(p.Sample.ReceivedAt)
	maxAge := c.deps.Config.NITZMaxSampleAge()
	if age < 0 || age > maxAge {
		if p.Kind == KindImmediate {
			if age < 0 {
				return p, fmt.Errorf("%w: received %s ahead of now", ErrFutureSample, -age)
			}
			return p, fmt.Errorf("%w: %s old", ErrStaleSample, age)
		}
		log.Debug().Dur("age", age).Msg("nitz: retained sample too old, ignoring its time")
		p.Sample.TimeValid = false
	}
	if p.Sample.TimeValid && !p.Sample.fieldsValid() {
		p.Sample.TimeValid = false
	}

	p.Outcome = Outcome{
		ZoneValid: p.Sample.ZoneValid,
		DSTValid:  p.Sample.DSTValid,
	}
	return p, nil
}

// timeValue sets the system time from the sample, or from NTP when the
// sample has no usable time. An NTP failure is not an error, zone data may
// still be applied.
func (c *Coordinator) timeValue(ctx context.Context, p pass) (pass, error) {
	if !p.AutoTime {
		p.Outcome.TimeValid = p.Sample.TimeValid
		return p, nil
	}

	if p.Sample.TimeValid {
		now := c.clock.Now()
		utc := p.Sample.UTC().Add(now.Sub(p.Sample.ReceivedAt))
		if err := c.deps.Registry.Update(clocks.TagNITZ, utc.Sub(now)); err != nil {
			log.Debug().Err(err).Msg("nitz: clock source not registered")
		}
		p.Outcome.TimeValid = true
		p.Outcome.Source = clocks.TagNITZ
		p.Outcome.TimeDelta = c.stepOrLog(utc, clocks.TagNITZ)
		p.Outcome.TimeSet = p.Outcome.TimeDelta != 0
		return p, nil
	}

	if !p.Features.Has(FeatureAllowNTP) || c.deps.NTP == nil {
		return p, nil
	}

	offset, err := c.deps.NTP.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return p, fmt.Errorf("ntp fallback: %w", ctx.Err())
		}
		log.Info().Err(err).Msg("nitz: ntp fallback failed")
		return p, nil
	}

	p.Outcome.TimeValid = true
	p.Outcome.Source = clocks.TagNTP
	p.Outcome.TimeDelta = c.stepOrLog(c.clock.Now().Add(offset), clocks.TagNTP)
	p.Outcome.TimeSet = p.Outcome.TimeDelta != 0
	return p, nil
}

// offsetValue resolves and applies a zone from the sample's offset. When
// the network gave no DST validity, DST is assumed active.
func (c *Coordinator) offsetValue(ctx context.Context, p pass) (pass, error) {
	if !p.AutoZone || !p.Sample.ZoneValid {
		return p, nil
	}

	s, applied := applyCorrections(p.Sample)
	if len(applied) > 0 {
		log.Info().
			Strs("rules", applied).
			Int("mcc", s.MCC).
			Int("offset", s.OffsetMinutes).
			Bool("dst", s.DST).
			Msg("nitz: corrected network zone data")
	}
	p.Sample = s
	p.Outcome.Corrections = applied

	dst := s.DST
	if !s.DSTValid {
		dst = true
	}

	var (
		z   zones.ZoneInfo
		res zones.Resolution
	)
	if p.Features.Has(FeatureForceGeneric) {
		if g, ok := c.deps.Catalog.Generic(s.OffsetMinutes); ok {
			z, res = g, zones.ResolvedGeneric
		} else {
			z, res = c.deps.Catalog.Failsafe(), zones.ResolvedFailsafe
		}
	} else {
		mcc := 0
		if p.Features.Has(FeatureAllowMCC) {
			mcc = s.MCC
		}
		z, res = c.deps.Catalog.ResolveByOffset(s.OffsetMinutes, dst, mcc, p.Features.Has(FeatureAllowGeneric))
	}
	p.Outcome.Zone = z
	p.Outcome.Resolution = res

	if res == zones.ResolvedFailsafe {
		if cur, ok := c.SelectedZone(ctx); ok {
			log.Info().
				Str("zone", cur.Name).
				Int("offset", s.OffsetMinutes).
				Msg("nitz: no zone for offset, keeping current selection")
			p.Outcome.Zone = cur
			return p, nil
		}
	}

	changed, err := c.applyZone(ctx, z, res.String())
	if err != nil {
		return p, err
	}
	p.Outcome.ZoneChanged = changed
	return p, nil
}

// dstValue is kept as a pipeline step. DST is folded into offsetValue so
// a sample with invalid DST still resolves a zone.
func (*Coordinator) dstValue(_ context.Context, p pass) (pass, error) {
	return p, nil
}

// exit records the pass against the current cycle.
func (c *Coordinator) exit(_ context.Context, p pass) (pass, error) {
	if p.Outcome.TimeSet {
		c.cycle.timeChanged = true
		c.cycle.timeDelta += p.Outcome.TimeDelta
		c.cycle.source = p.Outcome.Source
		notifications.ClocksChanged(c.deps.Notifications, models.ClocksChangedPayload{
			Timestamp: c.clock.Now(),
			Tag:       clocks.TagSystem,
			Offset:    int64(p.Outcome.TimeDelta / time.Second),
		})
	}
	if p.Outcome.ZoneChanged {
		c.cycle.zoneChanged = true
	}

	c.deps.Metrics.PipelinePass(p.Kind.String())
	log.Debug().
		Str("pipeline", p.Kind.String()).
		Str("features", p.Features.String()).
		Bool("timeValid", p.Outcome.TimeValid).
		Bool("zoneValid", p.Outcome.ZoneValid).
		Bool("dstValid", p.Outcome.DSTValid).
		Str("zone", p.Outcome.Zone.Name).
		Msg("nitz: pass complete")
	return p, nil
}
