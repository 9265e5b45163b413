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

package helpers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/helpers/command"
	"github.com/rs/zerolog/log"
)

var ErrServiceRunning = errors.New("service already running")

var ErrServiceNotRunning = errors.New("service not running")

// ServiceEntry starts the service and returns its stop function.
type ServiceEntry func() (func() error, error)

type Service struct {
	exec   command.Executor
	start  ServiceEntry
	stop   func() error
	dirs   Dirs
	daemon bool
}

type ServiceArgs struct {
	Executor command.Executor
	Entry    ServiceEntry
	Dirs     Dirs
	NoDaemon bool
}

func NewService(args ServiceArgs) (*Service, error) {
	if err := os.MkdirAll(args.Dirs.TempDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	exec := args.Executor
	if exec == nil {
		exec = &command.RealExecutor{}
	}

	return &Service{
		exec:   exec,
		daemon: !args.NoDaemon,
		start:  args.Entry,
		dirs:   args.Dirs,
	}, nil
}

func (s *Service) pidPath() string {
	return filepath.Join(s.dirs.TempDir, config.PidFile)
}

func (s *Service) createPidFile() error {
	err := os.WriteFile(s.pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func (s *Service) removePidFile() error {
	if err := os.Remove(s.pidPath()); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Pid returns the process ID of the running service daemon, or 0.
func (s *Service) Pid() (int, error) {
	//nolint:gosec // pid file lives in our own temp dir
	data, err := os.ReadFile(s.pidPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("error parsing pid: %w", err)
	}
	return pid, nil
}

// Running returns true if the service is running.
func (s *Service) Running() bool {
	pid, err := s.Pid()
	if err != nil || pid == 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return IsProcessRunning(process)
}

func (s *Service) stopService() error {
	log.Info().Msg("stopping service")

	if err := s.stop(); err != nil {
		log.Error().Err(err).Msg("error stopping service")
		return err
	}

	if err := s.removePidFile(); err != nil {
		log.Error().Err(err).Msg("error removing pid file")
		return err
	}

	return nil
}

// startService runs the service in this process and blocks until SIGINT or
// SIGTERM.
func (s *Service) startService() error {
	if s.Running() {
		return ErrServiceRunning
	}

	log.Info().Msg("starting service")

	if err := s.createPidFile(); err != nil {
		return err
	}

	stop, err := s.start()
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		if rmErr := s.removePidFile(); rmErr != nil {
			log.Error().Err(rmErr).Msg("error removing pid file")
		}
		return err
	}
	s.stop = stop

	if !s.daemon {
		return s.stopService()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	return s.stopService()
}

// Start launches a detached copy of this binary running the service.
func (s *Service) Start() error {
	if s.Running() {
		return ErrServiceRunning
	}

	binPath := os.Getenv(config.AppEnv)
	if binPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("error getting absolute binary path: %w", err)
		}
		binPath = exePath
	}

	env := []string{fmt.Sprintf("%s=%s", config.AppEnv, binPath)}
	configPath := filepath.Join(s.dirs.ConfigDir, config.CfgFile)
	if _, err := os.Stat(configPath); err == nil {
		env = append(env, fmt.Sprintf("%s=%s", config.CfgEnv, configPath))
	}

	err := s.exec.StartWithOptions(context.Background(), command.StartOptions{Env: env}, binPath, "-service", "exec")
	if err != nil {
		return fmt.Errorf("error starting service: %w", err)
	}

	return nil
}

// Stop signals the service daemon to exit.
func (s *Service) Stop() error {
	if !s.Running() {
		return ErrServiceNotRunning
	}

	pid, err := s.Pid()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process: %w", err)
	}

	return nil
}

func (s *Service) Restart() error {
	if s.Running() {
		if err := s.Stop(); err != nil {
			return err
		}
	}

	for s.Running() {
		time.Sleep(1 * time.Second)
	}

	return s.Start()
}

func (s *Service) ServiceHandler(cmd string) error {
	switch cmd {
	case "exec":
		return s.startService()
	case "start":
		return s.Start()
	case "stop":
		return s.Stop()
	case "restart":
		return s.Restart()
	case "status":
		if s.Running() {
			_, _ = fmt.Println("started")
			return nil
		}
		_, _ = fmt.Println("stopped")
		return ErrServiceNotRunning
	case "":
		return nil
	default:
		return fmt.Errorf("unknown service argument: %s", cmd)
	}
}
