// Copyright 2025 The recapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the summarization service over HTTP: summaries,
// progress streaming, question answering, health, and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/observability"
	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/qa"
	"github.com/recapd/recapd/pkg/ratelimit"
)

// ConversationStore persists question answering turns. Satisfied by
// *store.SQLStore; nil disables conversation history.
type ConversationStore interface {
	SaveTurn(ctx context.Context, id, contentID, clientID string, role qa.Role, text string) error
	History(ctx context.Context, contentID, clientID string, limit int) ([]qa.Turn, error)
}

// Server is the HTTP surface over the pipeline service and the QA engine.
type Server struct {
	cfg     *config.ServerConfig
	service *pipeline.Service
	qa      *qa.Engine
	limiter *ratelimit.Limiter
	metrics *observability.Metrics
	turns   ConversationStore
	hub     *eventHub
	logger  *slog.Logger

	httpServer *http.Server
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithMetrics exposes /metrics and records request outcomes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithLimiter rate-limits question answering. Summaries are limited inside
// the pipeline service.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// WithConversationStore persists QA conversations per client.
func WithConversationStore(turns ConversationStore) Option {
	return func(s *Server) { s.turns = turns }
}

// New creates the server. qaEngine may be nil when retrieval is disabled;
// the ask endpoint then reports the feature unavailable.
func New(cfg *config.ServerConfig, service *pipeline.Service, qaEngine *qa.Engine, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		qa:      qaEngine,
		hub:     newEventHub(),
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:        cfg.Address(),
		Handler:     s.routes(),
		ReadTimeout: time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.MetricsEnabled != nil && *s.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/summaries", s.handleSummarize)
		r.Get("/summaries/{contentID}/events", s.handleEvents)
		r.Post("/ask", s.handleAsk)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.cfg.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started).Round(time.Millisecond).String(),
			"requestID", middleware.GetReqID(r.Context()))
	})
}

// clientID resolves the caller identity: the X-Client-ID header when
// present, the remote IP otherwise.
func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
