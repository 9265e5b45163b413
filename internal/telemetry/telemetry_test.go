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

package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{
			name:     "no username in path",
			input:    "/usr/share/zoneinfo/Europe/Berlin",
			expected: "/usr/share/zoneinfo/Europe/Berlin",
		},
		{
			name:     "linux home path",
			input:    "/home/sam/.local/share/timekeeper/prefs.db",
			expected: "/home/<user>/.local/share/timekeeper/prefs.db",
		},
		{
			name:     "linux home path uppercase",
			input:    "/Home/Sam/.config/timekeeper/timekeeper.toml",
			expected: "/home/<user>/.config/timekeeper/timekeeper.toml",
		},
		{
			name:     "macos users path",
			input:    "/Users/sam/Library/timekeeper/timekeeper.toml",
			expected: "/Users/<user>/Library/timekeeper/timekeeper.toml",
		},
		{
			name:     "windows path",
			input:    "C:\\Users\\sam\\AppData\\Local\\timekeeper\\prefs.db",
			expected: "C:\\Users\\<user>\\AppData\\Local\\timekeeper\\prefs.db",
		},
		{
			name:     "windows path different drive",
			input:    "D:\\Users\\admin\\timekeeper\\logs",
			expected: "C:\\Users\\<user>\\timekeeper\\logs",
		},
		{
			name:     "multiple paths in message",
			input:    "copying /home/alice/a to /home/bob/b",
			expected: "copying /home/<user>/a to /home/<user>/b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizePath(tt.input))
		})
	}
}

func TestSanitizeEvent(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "my-laptop",
		Message:    "open /home/sam/prefs.db: permission denied",
		Extra:      map[string]any{"path": "/Users/sam/x", "count": 3},
		Exception: []sentry.Exception{{
			Stacktrace: &sentry.Stacktrace{Frames: []sentry.Frame{{
				AbsPath:  "/home/sam/src/timekeeper/pkg/nitz/coordinator.go",
				Filename: "pkg/nitz/coordinator.go",
			}}},
		}},
	}

	out := sanitizeEvent(event)
	assert.Empty(t, out.ServerName)
	assert.Equal(t, "open /home/<user>/prefs.db: permission denied", out.Message)
	assert.Equal(t, "/Users/<user>/x", out.Extra["path"])
	assert.Equal(t, 3, out.Extra["count"])
	frame := out.Exception[0].Stacktrace.Frames[0]
	assert.Equal(t, "/home/<user>/src/timekeeper/pkg/nitz/coordinator.go", frame.AbsPath)
	assert.Equal(t, "pkg/nitz/coordinator.go", frame.Filename)
}

func TestInit_DisabledAndMissingDSN(t *testing.T) {
	t.Parallel()

	require.NoError(t, Init(Options{Enabled: false}))
	require.ErrorIs(t, Init(Options{Enabled: true}), ErrNoDSN)
	assert.False(t, Enabled())

	// Safe while disabled.
	Close()
	Flush()
}
