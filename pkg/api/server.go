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

// Package api serves the JSON-RPC 2.0 interface over WebSocket and HTTP
// POST, and pushes notifications to every connected WebSocket client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ZaparooProject/timekeeper/pkg/api/methods"
	"github.com/ZaparooProject/timekeeper/pkg/api/middleware"
	"github.com/ZaparooProject/timekeeper/pkg/api/models"
	"github.com/ZaparooProject/timekeeper/pkg/api/models/requests"
	"github.com/ZaparooProject/timekeeper/pkg/api/validation"
	"github.com/ZaparooProject/timekeeper/pkg/config"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	APIPath     = "/api"
	MetricsPath = "/metrics"
	// maxBodyBytes bounds HTTP POST request bodies.
	maxBodyBytes = 1 << 20
)

var (
	JSONRPCErrorParseError = models.ErrorObject{
		Code:    -32700,
		Message: "Parse error",
	}
	JSONRPCErrorInvalidRequest = models.ErrorObject{
		Code:    -32600,
		Message: "Invalid Request",
	}
	JSONRPCErrorMethodNotFound = models.ErrorObject{
		Code:    -32601,
		Message: "Method not found",
	}
	JSONRPCErrorInvalidParams = models.ErrorObject{
		Code:    -32602,
		Message: "Invalid params",
	}
	JSONRPCErrorServerError = models.ErrorObject{
		Code:    -32000,
		Message: "Server error",
	}
)

var (
	ErrMethodNotFound = errors.New("unknown method")
	ErrMissingID      = errors.New("missing request id")
)

type methodFunc func(requests.RequestEnv) (any, error)

var methodMap = map[string]methodFunc{
	// time
	models.MethodTime:     methods.HandleTime,
	models.MethodTimeSet:  methods.HandleTimeSet,
	models.MethodTimeNITZ: methods.HandleTimeNITZ,
	// zones
	models.MethodZone:     methods.HandleZone,
	models.MethodZoneSet:  methods.HandleZoneSet,
	models.MethodZoneList: methods.HandleZoneList,
	// clocks
	models.MethodClocks:         methods.HandleClocks,
	models.MethodClocksRegister: methods.HandleClocksRegister,
	models.MethodClocksUpdate:   methods.HandleClocksUpdate,
	models.MethodBroadcast:      methods.HandleBroadcast,
	models.MethodBroadcastSet:   methods.HandleBroadcastSet,
	// rules
	models.MethodRules:     methods.HandleRules,
	models.MethodRulesBias: methods.HandleRulesBias,
	// preferences
	models.MethodPrefs:    methods.HandlePrefs,
	models.MethodPrefsSet: methods.HandlePrefsSet,
	// utils
	models.MethodNTPSync: methods.HandleNTPSync,
	models.MethodVersion: methods.HandleVersion,
}

// Server owns the HTTP router and WebSocket sessions. env is the template
// every request's environment is copied from.
type Server struct {
	cfg     *config.Instance
	env     requests.RequestEnv
	notifs  <-chan models.Notification
	ws      *melody.Melody
	limiter *middleware.IPRateLimiter
	router  chi.Router
	http    *http.Server
	done    chan struct{}
	addr    net.Addr
}

// NewServer builds the router. notifs may be nil when nothing should be
// pushed to clients.
func NewServer(cfg *config.Instance, env requests.RequestEnv, notifs <-chan models.Notification) *Server {
	s := &Server{
		cfg:     cfg,
		env:     env,
		notifs:  notifs,
		ws:      melody.New(),
		limiter: middleware.NewIPRateLimiter(env.Clock),
		done:    make(chan struct{}),
	}
	s.ws.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	s.ws.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, s.handleWSMessage))
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.NoCache)
	r.Use(middleware.HTTPIPFilterMiddleware(middleware.NewIPFilter(s.cfg.AllowedIPs())))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: append([]string{"http://localhost:*", "http://127.0.0.1:*"}, s.cfg.AllowedOrigins()...),
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))
		r.Get(APIPath, func(w http.ResponseWriter, r *http.Request) {
			if err := s.ws.HandleRequest(w, r); err != nil {
				log.Error().Err(err).Msg("api: handling websocket request")
			}
		})
		r.With(chimiddleware.Timeout(config.APIRequestTimeout)).Post(APIPath, s.handlePost)
	})

	r.Handle(MetricsPath, s.env.Metrics.Handler())
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background until ctx
// is done. Bind errors are returned directly.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.APIListen())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.APIListen(), err)
	}
	s.addr = ln.Addr()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.limiter.StartCleanup(ctx)
	go s.broadcastNotifications(ctx)

	go func() {
		defer close(s.done)
		log.Info().Str("addr", s.addr.String()).Msg("api: server listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api: server stopped unexpectedly")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.ws.Close(); err != nil {
			log.Debug().Err(err).Msg("api: closing websocket sessions")
		}
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("api: server shutdown")
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Done is closed when the server has stopped serving.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) broadcastNotifications(ctx context.Context) {
	if s.notifs == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-s.notifs:
			if !ok {
				return
			}
			data, err := json.Marshal(models.RequestObject{
				JSONRPC: "2.0",
				Method:  n.Method,
				Params:  n.Params,
			})
			if err != nil {
				log.Error().Err(err).Msg("api: marshalling notification")
				continue
			}
			if err := s.ws.Broadcast(data); err != nil {
				log.Debug().Err(err).Msg("api: broadcasting notification")
			}
		}
	}
}

// errorObject maps a handler error to its JSON-RPC error. Server errors
// carry the error text so clients see why a call failed.
func errorObject(err error) models.ErrorObject {
	var verr *validation.Error
	switch {
	case errors.Is(err, ErrMethodNotFound):
		return JSONRPCErrorMethodNotFound
	case errors.Is(err, ErrMissingID):
		return JSONRPCErrorInvalidRequest
	case errors.As(err, &verr):
		return models.ErrorObject{Code: JSONRPCErrorInvalidParams.Code, Message: verr.Error()}
	case errors.Is(err, validation.ErrMissingParams), errors.Is(err, validation.ErrInvalidParams):
		return models.ErrorObject{Code: JSONRPCErrorInvalidParams.Code, Message: err.Error()}
	default:
		return models.ErrorObject{Code: JSONRPCErrorServerError.Code, Message: err.Error()}
	}
}

func (s *Server) handleRequest(ctx context.Context, remoteAddr string, req *models.RequestObject) (any, error) {
	fn, ok := methodMap[strings.ToLower(req.Method)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, req.Method)
	}
	if req.ID == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingID, req.Method)
	}

	ctx, cancel := context.WithTimeout(ctx, config.APIRequestTimeout)
	defer cancel()

	env := s.env
	env.Context = ctx
	env.Params = req.Params
	env.ID = *req.ID
	env.IsLocal = middleware.IsLoopbackAddr(remoteAddr)

	log.Debug().Str("method", req.Method).Str("id", req.ID.String()).Msg("api: request")
	s.env.Metrics.APIRequest(req.Method)
	return fn(env)
}

// respond runs a parsed request and encodes the reply. Requests without an
// id are notifications and get no reply.
func (s *Server) respond(ctx context.Context, remoteAddr string, msg []byte) ([]byte, bool) {
	if !json.Valid(msg) {
		return encodeError(uuid.Nil, JSONRPCErrorParseError), true
	}

	var req models.RequestObject
	if err := json.Unmarshal(msg, &req); err != nil {
		return encodeError(uuid.Nil, JSONRPCErrorInvalidRequest), true
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return encodeError(maybeUUID(&req), JSONRPCErrorInvalidRequest), true
	}
	if req.ID == nil {
		log.Debug().Str("method", req.Method).Msg("api: ignoring client notification")
		return nil, false
	}

	result, err := s.handleRequest(ctx, remoteAddr, &req)
	if err != nil {
		log.Warn().Err(err).Str("method", req.Method).Msg("api: request failed")
		return encodeError(*req.ID, errorObject(err)), true
	}

	data, err := json.Marshal(models.ResponseObject{
		JSONRPC: "2.0",
		ID:      *req.ID,
		Result:  result,
	})
	if err != nil {
		log.Error().Err(err).Msg("api: marshalling response")
		return encodeError(*req.ID, JSONRPCErrorServerError), true
	}
	return data, true
}

func maybeUUID(req *models.RequestObject) uuid.UUID {
	if req.ID == nil {
		return uuid.Nil
	}
	return *req.ID
}

func encodeError(id uuid.UUID, e models.ErrorObject) []byte {
	data, err := json.Marshal(models.ResponseErrorObject{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &e,
	})
	if err != nil {
		log.Error().Err(err).Msg("api: marshalling error response")
		return nil
	}
	return data
}

func (s *Server) handleWSMessage(session *melody.Session, msg []byte) {
	// heartbeat
	if string(msg) == "ping" {
		if err := session.Write([]byte("pong")); err != nil {
			log.Debug().Err(err).Msg("api: sending pong")
		}
		return
	}

	ctx := session.Request.Context()
	data, ok := s.respond(ctx, session.Request.RemoteAddr, msg)
	if !ok || data == nil {
		return
	}
	if err := session.Write(data); err != nil {
		log.Debug().Err(err).Msg("api: sending response")
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data, ok := s.respond(r.Context(), r.RemoteAddr, body)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Msg("api: writing response")
	}
}
