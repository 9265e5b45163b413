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

// Package command wraps process spawning so helpers such as the NTP query
// tool and the app launcher can be mocked in tests.
package command

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// StartOptions configures how a detached process is started.
type StartOptions struct {
	// Dir is the working directory. Empty means the daemon's own.
	Dir string
	// Env is appended to the daemon's environment.
	Env []string
	// HideWindow prevents a console window from appearing (Windows-only).
	HideWindow bool
}

// Executor spawns external helper processes.
type Executor interface {
	// Run executes a command and waits for it to complete. A non-zero exit
	// status is returned as an error.
	Run(ctx context.Context, name string, args ...string) error

	// Output runs a command and returns its standard output. A non-zero
	// exit status is returned as an *exec.ExitError alongside any output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// Start starts a command without waiting for it to complete.
	Start(ctx context.Context, name string, args ...string) error

	// StartWithOptions starts a command with a custom environment and
	// working directory.
	StartWithOptions(ctx context.Context, opts StartOptions, name string, args ...string) error
}

// RealExecutor runs commands with os/exec.
type RealExecutor struct{}

//nolint:wrapcheck // Wrapping exec errors loses important context
func (*RealExecutor) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

//nolint:wrapcheck // Wrapping exec errors loses important context
func (*RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (e *RealExecutor) Start(ctx context.Context, name string, args ...string) error {
	return e.StartWithOptions(ctx, StartOptions{}, name, args...)
}

// StartWithOptions starts the process and reaps it in the background so
// detached helpers never linger as zombies.
func (*RealExecutor) StartWithOptions(
	ctx context.Context,
	opts StartOptions,
	name string,
	args ...string,
) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	applyPlatformOptions(cmd, opts)

	if err := cmd.Start(); err != nil {
		return err //nolint:wrapcheck // Wrapping exec errors loses important context
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Str("command", name).Msg("detached command exited with error")
		}
	}()
	return nil
}

// ExitCode extracts the exit status from an error returned by an Executor.
// The second result is false when the process never ran to completion.
func ExitCode(err error) (int, bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return -1, false
}
