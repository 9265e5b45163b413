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

// Package ntp runs the external NTP query helper and parses the clock offset
// it reports. At most one helper process runs at a time.
package ntp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/helpers/command"
	"github.com/ZaparooProject/timekeeper/pkg/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	ErrQueryFailed = errors.New("ntp query failed")
	ErrNoOffset    = errors.New("no offset in helper output")
)

const (
	DefaultCommand = "ntpdate"
	DefaultMarker  = "offset"
	DefaultTimeout = 15 * time.Second
)

// DefaultArgs queries without touching the clock.
var DefaultArgs = []string{"-q", "pool.ntp.org"}

type Config struct {
	Command string
	Marker  string
	Args    []string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Command == "" {
		c.Command = DefaultCommand
		if c.Args == nil {
			c.Args = DefaultArgs
		}
	}
	if c.Marker == "" {
		c.Marker = DefaultMarker
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result is delivered to every caller waiting on the same query. Offset is
// true time minus system time, rounded to the second.
type Result struct {
	Err    error
	Offset time.Duration
}

type Agent struct {
	exec      command.Executor
	onSuccess func(time.Duration)
	metrics   *metrics.Metrics
	marker    *regexp.Regexp
	group     singleflight.Group
	cfg       Config
}

// NewAgent creates an agent. onSuccess is called once per successful helper
// run, before waiting callers are released, and may be nil.
func NewAgent(
	exec command.Executor,
	cfg Config,
	onSuccess func(time.Duration),
	m *metrics.Metrics,
) *Agent {
	cfg = cfg.withDefaults()
	return &Agent{
		exec:      exec,
		cfg:       cfg,
		onSuccess: onSuccess,
		metrics:   m,
		marker:    markerPattern(cfg.Marker),
	}
}

func markerPattern(marker string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker) + `[\s:=]*([+-]?\d+(?:\.\d+)?)`)
}

// Timeout is the upper bound on how long a query may take.
func (a *Agent) Timeout() time.Duration {
	return a.cfg.Timeout
}

// Query starts a helper run, or joins the one already in flight. The
// returned channel receives exactly one Result.
func (a *Agent) Query() <-chan Result {
	out := make(chan Result, 1)
	ch := a.group.DoChan("query", func() (any, error) {
		return a.run()
	})
	go func() {
		r := <-ch
		if r.Err != nil {
			out <- Result{Err: r.Err}
			return
		}
		off, _ := r.Val.(time.Duration)
		out <- Result{Offset: off}
	}()
	return out
}

// Sync waits for one query result, giving up early if ctx is done. A
// cancelled wait does not stop the helper for other callers.
func (a *Agent) Sync(ctx context.Context) (time.Duration, error) {
	select {
	case r := <-a.Query():
		return r.Offset, r.Err
	case <-ctx.Done():
		return 0, fmt.Errorf("waiting for ntp query: %w", ctx.Err())
	}
}

func (a *Agent) run() (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()

	log.Debug().Str("command", a.cfg.Command).Strs("args", a.cfg.Args).Msg("ntp: running query helper")

	out, err := a.exec.Output(ctx, a.cfg.Command, a.cfg.Args...)
	if err != nil {
		a.metrics.NTPQuery(false)
		if code, ran := command.ExitCode(err); ran {
			log.Warn().Int("exit", code).Msg("ntp: query helper failed")
			return 0, fmt.Errorf("%w: helper exited with status %d", ErrQueryFailed, code)
		}
		log.Warn().Err(err).Msg("ntp: could not run query helper")
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	off, err := a.parse(out)
	if err != nil {
		a.metrics.NTPQuery(false)
		log.Warn().Err(err).Msg("ntp: unparseable helper output")
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	a.metrics.NTPQuery(true)
	log.Info().Dur("offset", off).Msg("ntp: query succeeded")
	if a.onSuccess != nil {
		a.onSuccess(off)
	}
	return off, nil
}

func (a *Agent) parse(out []byte) (time.Duration, error) {
	return parseOffset(out, a.marker)
}

// ParseOffset finds the last occurrence of marker in out and parses the
// signed decimal seconds that follow it.
func ParseOffset(out []byte, marker string) (time.Duration, error) {
	return parseOffset(out, markerPattern(marker))
}

func parseOffset(out []byte, re *regexp.Regexp) (time.Duration, error) {
	ms := re.FindAllSubmatch(out, -1)
	if len(ms) == 0 {
		return 0, ErrNoOffset
	}
	last := ms[len(ms)-1]
	secs, err := strconv.ParseFloat(string(last[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse offset %q: %w", last[1], err)
	}
	if math.Abs(secs) > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("offset %q out of range: %w", last[1], ErrNoOffset)
	}
	return time.Duration(math.Round(secs)) * time.Second, nil
}
