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

// Package cli holds the command line flags shared by the timekeeper
// binaries and the setup every binary runs before starting the service.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/timekeeper/internal/telemetry"
	"github.com/ZaparooProject/timekeeper/pkg/api/client"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/helpers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrServiceNotRunning = errors.New("timekeeper service is not running")
	ErrMissingMethod     = errors.New("api flag requires a method")
)

type Flags struct {
	API     *string
	Params  *string
	Wait    *string
	Service *string
	Version *bool
	Daemon  *bool
	Timeout *time.Duration
}

// SetupFlags defines all common CLI flags.
func SetupFlags() *Flags {
	return &Flags{
		API: flag.String(
			"api",
			"",
			"send method (optionally method:params) to the API and print the response",
		),
		Params: flag.String(
			"params",
			"",
			"JSON params for the -api method",
		),
		Wait: flag.String(
			"wait",
			"",
			"wait for a notification and print its params",
		),
		Service: flag.String(
			"service",
			"",
			"manage the background service (start, stop, restart, status)",
		),
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run service in foreground, logging to stderr",
		),
		Timeout: flag.Duration(
			"timeout",
			0,
			"how long -wait waits before giving up, 0 waits forever",
		),
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Pre runs flag parsing and actions any immediate flags that don't
// require environment setup. Add any custom flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("Timekeeper v%s\n", config.AppVersion)
		os.Exit(0)
	}
}

// splitMethod accepts "method" or "method:params". Explicit params win
// over inline ones.
func splitMethod(raw, params string) (method, outParams string) {
	ps := strings.SplitN(raw, ":", 2)
	method = strings.TrimSpace(ps[0])
	if params == "" && len(ps) > 1 {
		params = ps[1]
	}
	return method, params
}

// CallAPI sends one method to the service. running is checked first so a
// missing service gives a clear error instead of a dial failure.
func CallAPI(
	ctx context.Context,
	c client.APIClient,
	running func() bool,
	raw, params string,
) (string, error) {
	method, params := splitMethod(raw, params)
	if method == "" {
		return "", ErrMissingMethod
	}
	if running != nil && !running() {
		return "", ErrServiceNotRunning
	}
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return "", fmt.Errorf("error calling %s: %w", method, err)
	}
	return resp, nil
}

// WaitFor blocks until the service sends the named notification.
func WaitFor(
	ctx context.Context,
	c client.APIClient,
	running func() bool,
	method string,
	timeout time.Duration,
) (string, error) {
	if running != nil && !running() {
		return "", ErrServiceNotRunning
	}
	resp, err := c.WaitNotification(ctx, timeout, method)
	if err != nil {
		return "", fmt.Errorf("error waiting for %s: %w", method, err)
	}
	return resp, nil
}

// Post actions all remaining common flags that require the environment to be
// set up. Logging is allowed.
func (f *Flags) Post(cfg *config.Instance) {
	c := client.NewLocalAPIClient(cfg)
	running := func() bool { return helpers.IsServiceRunning(cfg) }

	switch {
	case isFlagPassed("api"):
		resp, err := CallAPI(context.Background(), c, running, *f.API, *f.Params)
		if err != nil {
			log.Error().Err(err).Msg("error calling API")
			_, _ = fmt.Fprintf(os.Stderr, "Error calling API: %v\n", err)
			os.Exit(1)
		}
		_, _ = fmt.Println(resp)
		os.Exit(0)
	case isFlagPassed("wait"):
		resp, err := WaitFor(context.Background(), c, running, *f.Wait, *f.Timeout)
		if err != nil {
			log.Error().Err(err).Msg("error waiting for notification")
			_, _ = fmt.Fprintf(os.Stderr, "Error waiting for notification: %v\n", err)
			os.Exit(1)
		}
		_, _ = fmt.Println(resp)
		os.Exit(0)
	}
}

// Setup creates the directories, starts logging and loads the config.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaultConfig config.Values, writers []io.Writer) (*config.Instance, helpers.Dirs) {
	dirs := helpers.DefaultDirs()

	err := helpers.EnsureDirectories(dirs)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	err = helpers.InitLogging(dirs.LogDir, writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(dirs.ConfigDir, defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Initialize error reporting (opt-in)
	if err := telemetry.Init(telemetry.Options{
		Enabled:    cfg.ErrorReporting(),
		DSN:        os.Getenv(config.SentryDSNEnv),
		DeviceID:   cfg.DeviceID(),
		AppVersion: config.AppVersion,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, dirs
}
