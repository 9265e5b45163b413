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

package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPIClient struct {
	mock.Mock
}

func (m *mockAPIClient) Call(ctx context.Context, method, params string) (string, error) {
	args := m.Called(ctx, method, params)
	return args.String(0), args.Error(1)
}

func (m *mockAPIClient) WaitNotification(ctx context.Context, timeout time.Duration, method string) (string, error) {
	args := m.Called(ctx, timeout, method)
	return args.String(0), args.Error(1)
}

func running() bool { return true }

func stopped() bool { return false }

func TestSplitMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		params     string
		wantMethod string
		wantParams string
	}{
		{name: "method only", raw: "time.get", wantMethod: "time.get"},
		{
			name:       "inline params",
			raw:        `zone.set:{"zone":"Europe/Paris"}`,
			wantMethod: "zone.set",
			wantParams: `{"zone":"Europe/Paris"}`,
		},
		{
			name:       "inline params keep colons",
			raw:        `time.nitz:{"nitz":"24/06/01,12:00:00+08"}`,
			wantMethod: "time.nitz",
			wantParams: `{"nitz":"24/06/01,12:00:00+08"}`,
		},
		{
			name:       "explicit params win",
			raw:        `zone.set:{"zone":"Europe/Paris"}`,
			params:     `{"zone":"Asia/Tokyo"}`,
			wantMethod: "zone.set",
			wantParams: `{"zone":"Asia/Tokyo"}`,
		},
		{name: "blank", raw: "  ", wantMethod: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			method, params := splitMethod(tt.raw, tt.params)
			assert.Equal(t, tt.wantMethod, method)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}

func TestCallAPI(t *testing.T) {
	t.Parallel()

	c := &mockAPIClient{}
	c.On("Call", mock.Anything, "clocks", `{"tag":"ntp"}`).Return(`{"entries":[]}`, nil)

	resp, err := CallAPI(context.Background(), c, running, "clocks", `{"tag":"ntp"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":[]}`, resp)
	c.AssertExpectations(t)
}

func TestCallAPI_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")

	tests := []struct {
		wantErr error
		running func() bool
		name    string
		raw     string
		callErr error
	}{
		{name: "missing method", raw: "", running: running, wantErr: ErrMissingMethod},
		{name: "service not running", raw: "time.get", running: stopped, wantErr: ErrServiceNotRunning},
		{name: "call fails", raw: "time.get", running: running, callErr: boom, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &mockAPIClient{}
			if tt.callErr != nil {
				c.On("Call", mock.Anything, "time.get", "").Return("", tt.callErr)
			}

			_, err := CallAPI(context.Background(), c, tt.running, tt.raw, "")
			require.ErrorIs(t, err, tt.wantErr)
			if tt.callErr == nil {
				c.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestWaitFor(t *testing.T) {
	t.Parallel()

	c := &mockAPIClient{}
	c.On("WaitNotification", mock.Anything, 5*time.Second, "time.changed").
		Return(`{"source":"nitz"}`, nil)

	resp, err := WaitFor(context.Background(), c, running, "time.changed", 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"nitz"}`, resp)

	_, err = WaitFor(context.Background(), c, stopped, "time.changed", 0)
	require.ErrorIs(t, err, ErrServiceNotRunning)
	c.AssertNumberOfCalls(t, "WaitNotification", 1)
}
