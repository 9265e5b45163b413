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

// Package client talks to a running timekeeper service over its local
// WebSocket API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrRequestTimeout   = errors.New("request timed out")
	ErrInvalidParams    = errors.New("invalid params")
	ErrRequestCancelled = errors.New("request cancelled")
)

// RPCError is an error object returned by the service.
type RPCError struct {
	Message string
	Code    int
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

const APIPath = "/api"

// LocalURL is the WebSocket endpoint of the service on this host.
func LocalURL(cfg *config.Instance) url.URL {
	return url.URL{
		Scheme: "ws",
		Host:   "localhost:" + strconv.Itoa(cfg.APIPort()),
		Path:   APIPath,
	}
}

func dial(ctx context.Context, u url.URL) (*websocket.Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}
	return c, nil
}

func closeConn(c *websocket.Conn) {
	if err := c.Close(); err != nil {
		log.Debug().Err(err).Msg("error closing websocket")
	}
}

// readUntil reads messages until match accepts one, the connection fails
// or the deadline passes.
func readUntil(ctx context.Context, c *websocket.Conn, timeout time.Duration, match func([]byte) bool) error {
	done := make(chan error, 1)
	go func() {
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			if match(msg) {
				done <- nil
				return
			}
		}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("error reading message: %w", err)
		}
		return nil
	case <-timer:
		closeConn(c)
		<-done
		return ErrRequestTimeout
	case <-ctx.Done():
		closeConn(c)
		<-done
		return ErrRequestCancelled
	}
}

// Call sends one method to the WebSocket endpoint at u and returns the
// result as JSON.
func Call(ctx context.Context, u url.URL, method, params string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to create request id: %w", err)
	}
	req := models.RequestObject{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
	}
	if params != "" {
		if !json.Valid([]byte(params)) {
			return "", ErrInvalidParams
		}
		req.Params = json.RawMessage(params)
	}

	c, err := dial(ctx, u)
	if err != nil {
		return "", err
	}
	defer closeConn(c)

	if err := c.WriteJSON(req); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	var resp struct {
		Error   *models.ErrorObject `json:"error"`
		Result  json.RawMessage     `json:"result"`
		JSONRPC string              `json:"jsonrpc"`
		ID      uuid.UUID           `json:"id"`
	}
	err = readUntil(ctx, c, config.APIRequestTimeout, func(msg []byte) bool {
		if err := json.Unmarshal(msg, &resp); err != nil {
			return false
		}
		return resp.JSONRPC == "2.0" && resp.ID == id
	})
	if err != nil {
		return "", err
	}

	if resp.Error != nil {
		return "", &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if len(resp.Result) == 0 {
		return "null", nil
	}
	return string(resp.Result), nil
}

// WaitFor blocks until the endpoint at u pushes a notification named
// method and returns its params. A zero timeout uses the API request
// timeout, a negative one waits until ctx is done.
func WaitFor(ctx context.Context, u url.URL, timeout time.Duration, method string) (string, error) {
	c, err := dial(ctx, u)
	if err != nil {
		return "", err
	}
	defer closeConn(c)

	if timeout == 0 {
		timeout = config.APIRequestTimeout
	}

	var n models.RequestObject
	err = readUntil(ctx, c, timeout, func(msg []byte) bool {
		n = models.RequestObject{}
		if err := json.Unmarshal(msg, &n); err != nil {
			return false
		}
		return n.JSONRPC == "2.0" && n.ID == nil && n.Method == method
	})
	if err != nil {
		return "", err
	}
	if len(n.Params) == 0 {
		return "null", nil
	}
	return string(n.Params), nil
}

// LocalClient sends a single method to the local service.
func LocalClient(ctx context.Context, cfg *config.Instance, method, params string) (string, error) {
	return Call(ctx, LocalURL(cfg), method, params)
}

// WaitNotification waits for a notification from the local service.
func WaitNotification(ctx context.Context, timeout time.Duration, cfg *config.Instance, method string) (string, error) {
	return WaitFor(ctx, LocalURL(cfg), timeout, method)
}
