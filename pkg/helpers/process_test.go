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

//go:build !windows

package helpers

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessRunning(t *testing.T) {
	t.Parallel()

	assert.False(t, IsProcessRunning(nil))

	self, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	assert.True(t, IsProcessRunning(self))

	cmd := exec.CommandContext(context.Background(), "true")
	require.NoError(t, cmd.Start())
	proc := cmd.Process
	require.NoError(t, cmd.Wait())
	assert.False(t, IsProcessRunning(proc), "reaped process is gone")
}
