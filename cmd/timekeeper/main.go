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

//go:build linux || darwin

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZaparooProject/timekeeper/internal/telemetry"
	"github.com/ZaparooProject/timekeeper/pkg/cli"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/helpers"
	"github.com/ZaparooProject/timekeeper/pkg/service"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		telemetry.Flush()
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags()
	flags.Pre()

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg, dirs := cli.Setup(config.BaseDefaults, logWriters)
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	flags.Post(cfg)

	svc, err := helpers.NewService(helpers.ServiceArgs{
		Entry: func() (func() error, error) {
			return service.Start(cfg, dirs)
		},
		Dirs: dirs,
	})
	if err != nil {
		log.Error().Err(err).Msg("error creating service manager")
		return fmt.Errorf("error creating service manager: %w", err)
	}

	if *flags.Service != "" {
		return svc.ServiceHandler(*flags.Service) //nolint:wrapcheck // already descriptive
	}

	log.Info().Bool("daemon", *flags.Daemon).Msg("starting service in foreground")
	err = svc.ServiceHandler("exec")
	if errors.Is(err, helpers.ErrServiceRunning) {
		_, _ = fmt.Println("service is already running")
		return nil
	}
	return err //nolint:wrapcheck // already descriptive
}
