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

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/recapd/recapd/pkg/cache"
	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/ratelimit"
)

// Request is one summarization request as the service sees it, after
// transport decoding.
type Request struct {
	ContentID string   `json:"contentId"`
	SourceURL string   `json:"sourceUrl,omitempty"`
	Mode      Mode     `json:"mode"`
	Features  Features `json:"features"`
	Language  string   `json:"language,omitempty"`
}

// Validate rejects malformed requests before any stage or quota is touched.
func (r *Request) Validate() error {
	if r.ContentID == "" {
		return NewInputError("contentId", "must not be empty")
	}
	if r.Mode == "" {
		r.Mode = ModeStandard
	}
	if !ValidMode(r.Mode) {
		return NewInputError("mode", "must be one of quick, standard, research, educational")
	}
	return nil
}

// ResultStore persists completed runs. Satisfied by *store.SQLStore.
type ResultStore interface {
	SaveResult(ctx context.Context, state *State) error
}

// CacheObserver receives cache activity for metrics: "hit", "miss", "join".
type CacheObserver interface {
	ObserveCache(event string)
}

// Service wraps the engine with the request-level concerns: validation,
// rate limiting, the fingerprint cache with its in-progress lease, and
// result persistence. At most one pipeline computes per fingerprint;
// identical concurrent requests wait on the holder's result.
type Service struct {
	engine   *Engine
	cache    cache.Store
	cacheCfg *config.CacheConfig
	limiter  *ratelimit.Limiter
	results  ResultStore
	observer CacheObserver
	logger   *slog.Logger
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithResultStore attaches persistence for completed runs.
func WithResultStore(results ResultStore) ServiceOption {
	return func(s *Service) { s.results = results }
}

// WithCacheObserver attaches a metrics sink for cache activity.
func WithCacheObserver(observer CacheObserver) ServiceOption {
	return func(s *Service) { s.observer = observer }
}

// NewService wires the request-level layer around an engine. cacheStore and
// limiter may be nil to disable those concerns, as in tests.
func NewService(engine *Engine, cacheStore cache.Store, cacheCfg *config.CacheConfig, limiter *ratelimit.Limiter, log *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		engine:   engine,
		cache:    cacheStore,
		cacheCfg: cacheCfg,
		limiter:  limiter,
		logger:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize handles one request end to end. clientID identifies the caller
// for rate limiting. The returned error is nil for full and cached
// results, a TimeoutError (with the same partial state also returned) when
// the budget elapsed, a RateLimitError on quota denial, an InputError on
// validation failure, and an UpstreamError when a mandatory stage failed.
func (s *Service) Summarize(ctx context.Context, req Request, clientID string, notify Notifier) (*State, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if _, err := s.limiter.CheckAndRecord(ctx, clientID); err != nil {
			return nil, err
		}
	}

	if s.cache == nil || !s.cacheCfg.IsEnabled() {
		return s.run(ctx, req, notify)
	}

	fp := cache.Fingerprint(req.ContentID, string(req.Mode), req.Features.Flags())

	if entry, ok := s.cache.Get(fp); ok && entry.Status == cache.StatusCompleted {
		s.observeCache("hit")
		s.logger.Debug("cache hit", "contentID", req.ContentID, "fingerprint", fp[:12])
		return cachedState(entry)
	}
	s.observeCache("miss")

	lease, err := s.cache.PutInProgress(fp)
	if errors.Is(err, cache.ErrAlreadyInProgress) {
		return s.waitForHolder(ctx, req, fp, notify)
	}
	if err != nil {
		// Cache trouble never blocks the request.
		s.logger.Warn("cache lease unavailable, running uncached", "error", err)
		return s.run(ctx, req, notify)
	}

	state, runErr := s.run(ctx, req, notify)
	switch {
	case runErr == nil:
		lease.Complete(state)
	case IsTimeoutError(runErr):
		// Partial results are not cached; the next request gets a full
		// attempt.
		lease.Release()
	case errors.Is(runErr, context.Canceled):
		lease.Release()
	default:
		lease.Fail(runErr)
	}
	return state, runErr
}

// waitForHolder blocks on the in-flight computation for the fingerprint.
// When the wait times out or the holder fails, the request falls back to
// an independent uncached run.
func (s *Service) waitForHolder(ctx context.Context, req Request, fp string, notify Notifier) (*State, error) {
	wait := time.Duration(s.cacheCfg.LeaseWaitSeconds) * time.Second
	entry, err := s.cache.WaitResult(ctx, fp, wait)
	if err == nil && entry.Status == cache.StatusCompleted {
		s.observeCache("join")
		s.logger.Debug("joined in-flight computation", "contentID", req.ContentID, "fingerprint", fp[:12])
		return cachedState(entry)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.logger.Debug("lease wait fell through, running independently",
		"contentID", req.ContentID, "error", err)
	return s.run(ctx, req, notify)
}

func (s *Service) run(ctx context.Context, req Request, notify Notifier) (*State, error) {
	state := NewState(req.ContentID, req.SourceURL, req.Mode, req.Features, req.Language)
	state, err := s.engine.Run(ctx, state, notify)
	if err == nil && s.results != nil {
		if saveErr := s.results.SaveResult(ctx, state); saveErr != nil {
			s.logger.Warn("failed to persist result",
				"contentID", state.ContentID, "runID", state.RunID, "error", saveErr)
		}
	}
	return state, err
}

func (s *Service) observeCache(event string) {
	if s.observer != nil {
		s.observer.ObserveCache(event)
	}
}

// cachedState unpacks a completed cache entry.
func cachedState(entry *cache.Entry) (*State, error) {
	state, ok := entry.Result.(*State)
	if !ok {
		return nil, errors.New("cache entry holds unexpected result type")
	}
	return state.Clone(), nil
}
