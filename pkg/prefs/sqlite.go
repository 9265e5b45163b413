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

package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const sqliteConnParams = "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"

// SQLiteStore keeps preferences in a single table of a SQLite database.
type SQLiteStore struct {
	sql   *sql.DB
	clock clockwork.Clock
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}
	db, err := sql.Open("sqlite3", path+sqliteConnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run preference migrations: %w", err)
	}
	log.Debug().Str("path", path).Msg("prefs: sqlite store opened")
	return NewSQLiteStore(db, clockwork.NewRealClock()), nil
}

// NewSQLiteStore wraps an already migrated connection.
func NewSQLiteStore(db *sql.DB, clock clockwork.Clock) *SQLiteStore {
	return &SQLiteStore{sql: db, clock: clock}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.sql == nil {
		return "", false, ErrNotConnected
	}
	var v string
	err := s.sql.QueryRowContext(ctx, `SELECT Value FROM Preferences WHERE Key = ?;`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if s.sql == nil {
		return ErrNotConnected
	}
	_, err := s.sql.ExecContext(ctx, `
		INSERT INTO Preferences (Key, Value, Updated) VALUES (?, ?, ?)
		ON CONFLICT(Key) DO UPDATE SET Value = excluded.Value, Updated = excluded.Updated;`,
		key, value, s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (s *SQLiteStore) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	if s.sql == nil {
		return time.Time{}, false, ErrNotConnected
	}
	var ts int64
	err := s.sql.QueryRowContext(ctx, `SELECT Updated FROM Preferences WHERE Key = ?;`, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return time.Unix(ts, 0), true, nil
}

func (s *SQLiteStore) Close() error {
	if s.sql == nil {
		return nil
	}
	if err := s.sql.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
