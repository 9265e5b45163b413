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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/client"
	"github.com/ZaparooProject/timekeeper/pkg/api/middleware"
	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/ZaparooProject/timekeeper/pkg/metrics"
	"github.com/ZaparooProject/timekeeper/pkg/testing/helpers"
	"github.com/ZaparooProject/timekeeper/pkg/zones"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newTestServer(t *testing.T, mutate func(*config.Values)) (*Server, *helpers.TestEnv) {
	t.Helper()
	vals := config.BaseDefaults
	vals.Service.APIListen = "127.0.0.1:0"
	if mutate != nil {
		mutate(&vals)
	}
	e := helpers.NewTestEnv(t, vals)
	e.Env.Metrics = metrics.New(prometheus.NewRegistry())
	return NewServer(e.Config, e.Env, e.Notifications), e
}

// startServer serves on a loopback port until the test ends.
func startServer(t *testing.T, s *Server) url.URL {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return url.URL{Scheme: "ws", Host: s.Addr().String(), Path: APIPath}
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, APIPath, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorObject {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ResponseErrorObject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestServer_PostRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := helpers.PostJSONRPC(context.Background(), srv.Client(), srv.URL+APIPath, models.MethodZone, nil)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	var z models.ZoneResponse
	require.NoError(t, json.Unmarshal(resp.Result, &z))
	assert.Equal(t, zones.FailsafeName, z.Name)
	assert.False(t, z.Selected)
}

func TestServer_PostErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "parse error",
			body:     `{"jsonrpc":`,
			wantCode: JSONRPCErrorParseError.Code,
		},
		{
			name:     "wrong version",
			body:     `{"jsonrpc":"1.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"version"}`,
			wantCode: JSONRPCErrorInvalidRequest.Code,
		},
		{
			name:     "unknown method",
			body:     `{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"time.travel"}`,
			wantCode: JSONRPCErrorMethodNotFound.Code,
		},
		{
			name: "invalid params",
			body: `{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1",` +
				`"method":"zone.set","params":{"zone":"Atlantis/Capital"}}`,
			wantCode: JSONRPCErrorInvalidParams.Code,
		},
		{
			name:     "missing params",
			body:     `{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"time.set"}`,
			wantCode: JSONRPCErrorInvalidParams.Code,
		},
		{
			name:     "server error",
			body:     `{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"broadcast.get"}`,
			wantCode: JSONRPCErrorServerError.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestServer(t, nil)
			e := decodeError(t, post(t, s.Handler(), tt.body))
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestServer_PostNotificationHasNoReply(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := post(t, s.Handler(), `{"jsonrpc":"2.0","method":"version"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestServer_MethodNamesAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	rec := post(t, s.Handler(), `{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"VERSION"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result models.VersionResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, config.AppVersion, resp.Result.Version)
}

func TestServer_WebSocketCall(t *testing.T) {
	t.Parallel()

	s, e := newTestServer(t, nil)
	u := startServer(t, s)

	out, err := client.Call(context.Background(), u, models.MethodZoneSet, `{"zone":"Europe/Paris"}`)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)

	z, ok := e.Coordinator.SelectedZone(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Europe/Paris", z.Name)

	_, err = client.Call(context.Background(), u, models.MethodZoneSet, `{"zone":"Nowhere"}`)
	var rpcErr *client.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, JSONRPCErrorInvalidParams.Code, rpcErr.Code)
}

func dialWS(t *testing.T, u url.URL) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readWS(t *testing.T, c *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	return msg
}

func TestServer_WebSocketPing(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	u := startServer(t, s)
	c := dialWS(t, u)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "pong", string(readWS(t, c)))
}

func TestServer_BroadcastsNotifications(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	u := startServer(t, s)
	c := dialWS(t, u)

	// A pong proves the session is registered for broadcasts.
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.Equal(t, "pong", string(readWS(t, c)))

	_, err := client.Call(context.Background(), u, models.MethodZoneSet, `{"zone":"Asia/Tokyo"}`)
	require.NoError(t, err)

	var n models.RequestObject
	require.NoError(t, json.Unmarshal(readWS(t, c), &n))
	assert.Equal(t, models.NotificationZoneChanged, n.Method)
	assert.Nil(t, n.ID)

	var payload models.ZoneChangedPayload
	require.NoError(t, json.Unmarshal(n.Params, &payload))
	assert.Equal(t, "Asia/Tokyo", payload.Zone.Name)
	assert.Equal(t, "manual", payload.Resolution)
}

func TestServer_HTTPRateLimit(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	body := `{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"version"}`
	for i := range middleware.BurstSize {
		require.Equal(t, http.StatusOK, post(t, s.Handler(), body).Code, "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, post(t, s.Handler(), body).Code)
}

func TestServer_IPFilter(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(v *config.Values) {
		v.Service.AllowedIPs = []string{"10.0.0.0/8"}
	})
	body := `{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"version"}`

	tests := []struct {
		name       string
		remoteAddr string
		wantStatus int
	}{
		{name: "allowed network", remoteAddr: "10.1.2.3:5000", wantStatus: http.StatusOK},
		{name: "loopback", remoteAddr: "127.0.0.1:5000", wantStatus: http.StatusOK},
		{name: "outside", remoteAddr: "192.0.2.7:5000", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, APIPath, bytes.NewBufferString(body))
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, post(t, s.Handler(),
		`{"jsonrpc":"2.0","id":"6f1c4d46-1d1b-4b43-9a53-3b43f1f2a7a1","method":"version"}`).Code)

	req := httptest.NewRequest(http.MethodGet, MetricsPath, http.NoBody)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `timekeeper_api_requests_total{method="version"} 1`)
}

func TestServer_StartBindError(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(v *config.Values) {
		v.Service.APIListen = "127.0.0.1:99999"
	})
	require.Error(t, s.Start(context.Background()))
}

func TestServer_WebSocketRateLimit(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, nil)
	u := startServer(t, s)
	// The upgrade request spends one token from the same bucket.
	c := dialWS(t, u)

	for range middleware.BurstSize {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	}
	for range middleware.BurstSize - 1 {
		require.Equal(t, "pong", string(readWS(t, c)))
	}

	var resp models.ResponseErrorObject
	require.NoError(t, json.Unmarshal(readWS(t, c), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, middleware.ErrorCodeRateLimited, resp.Error.Code)
}
