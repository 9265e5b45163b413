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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFilter_IsAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		allowed    []string
		want       bool
	}{
		{name: "empty list allows all", remoteAddr: "203.0.113.9:80", want: true},
		{name: "exact address", allowed: []string{"192.168.1.10"}, remoteAddr: "192.168.1.10:5555", want: true},
		{name: "address with port", allowed: []string{"192.168.1.10:7498"}, remoteAddr: "192.168.1.10:1", want: true},
		{name: "cidr match", allowed: []string{"10.0.0.0/8"}, remoteAddr: "10.200.1.1:9", want: true},
		{name: "cidr miss", allowed: []string{"10.0.0.0/8"}, remoteAddr: "11.0.0.1:9", want: false},
		{name: "ipv6 loopback", allowed: []string{"10.0.0.0/8"}, remoteAddr: "[::1]:9", want: true},
		{name: "ipv4 loopback", allowed: []string{"10.0.0.0/8"}, remoteAddr: "127.0.0.1:9", want: true},
		{name: "ipv6 prefix", allowed: []string{"2001:db8::/32"}, remoteAddr: "[2001:db8::5]:9", want: true},
		{name: "mapped ipv4", allowed: []string{"192.0.2.0/24"}, remoteAddr: "[::ffff:192.0.2.5]:9", want: true},
		{name: "bad entries skipped", allowed: []string{"not-an-ip"}, remoteAddr: "192.0.2.5:9", want: false},
		{name: "garbage remote", allowed: []string{"10.0.0.0/8"}, remoteAddr: "nope", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewIPFilter(tt.allowed).IsAllowed(tt.remoteAddr))
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLoopbackAddr("127.0.0.1:7498"))
	assert.True(t, IsLoopbackAddr("[::1]:7498"))
	assert.True(t, IsLoopbackAddr("127.0.0.5"))
	assert.False(t, IsLoopbackAddr("192.0.2.1:7498"))
	assert.False(t, IsLoopbackAddr(""))
}

func TestHTTPIPFilterMiddleware(t *testing.T) {
	t.Parallel()

	h := HTTPIPFilterMiddleware(NewIPFilter([]string{"192.0.2.0/24"}))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	req := httptest.NewRequest(http.MethodGet, "/api", http.NoBody)
	req.RemoteAddr = "192.0.2.44:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api", http.NoBody)
	req.RemoteAddr = "198.51.100.1:1000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
