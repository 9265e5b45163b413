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

package tzrules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

var ErrNothingToWatch = errors.New("no zoneinfo directory to watch")

// Watch clears the cache whenever a file under the zoneinfo search paths
// changes, so tzdata updates apply without a restart. Watches are set up
// before Watch returns and stop when ctx is done. Only the host filesystem
// can be watched.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	watched := 0
	for _, root := range s.loader.SearchPaths() {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil //nolint:nilerr // unreadable entries are skipped
			}
			if err := w.Add(p); err != nil {
				log.Debug().Err(err).Str("path", p).Msg("tzrules: could not watch directory")
				return nil
			}
			watched++
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("path", root).Msg("tzrules: failed to walk zoneinfo path")
		}
	}
	if watched == 0 {
		_ = w.Close()
		return ErrNothingToWatch
	}

	log.Debug().Int("dirs", watched).Msg("tzrules: watching zoneinfo")
	go s.watchLoop(ctx, w)
	return nil
}

func (s *Service) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer func() {
		_ = w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := s.fs.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.Add(ev.Name); err != nil {
						log.Debug().Err(err).Str("path", ev.Name).Msg("tzrules: could not watch new directory")
					}
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.Info().Str("path", ev.Name).Msg("tzrules: zoneinfo changed")
				s.Invalidate()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("tzrules: fsnotify error")
		}
	}
}
