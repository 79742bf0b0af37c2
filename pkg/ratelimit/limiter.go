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

// Package ratelimit bounds request volume per client identity over a fixed
// window. Checks happen before any pipeline resource is acquired, so a
// rejected request never consumes upstream quota.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/recapd/recapd/pkg/config"
)

// CheckResult reports the outcome of a limit check.
type CheckResult struct {
	// Allowed is true when the request fits in the current window.
	Allowed bool

	// Remaining is how many requests the client has left in the window.
	Remaining int64

	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration

	// Reason explains a denial for logging and the error message.
	Reason string
}

// Limiter checks and records request counts per client.
type Limiter struct {
	cfg   *config.RateLimitConfig
	store Store
}

// New creates a limiter backed by the given store.
func New(cfg *config.RateLimitConfig, store Store) (*Limiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rate limit configuration is required")
	}
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	return &Limiter{cfg: cfg, store: store}, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return time.Duration(l.cfg.WindowSeconds) * time.Second
}

// Check evaluates the limit for a client without recording usage.
func (l *Limiter) Check(ctx context.Context, clientID string) (*CheckResult, error) {
	if clientID == "" {
		return nil, ErrInvalidClientID
	}
	if !l.cfg.IsEnabled() {
		return &CheckResult{Allowed: true}, nil
	}

	count, windowEnd, err := l.store.GetUsage(ctx, clientID, l.Window())
	if err != nil {
		return nil, fmt.Errorf("failed to read usage for %s: %w", clientID, err)
	}

	return l.evaluate(clientID, count, windowEnd), nil
}

// CheckAndRecord evaluates the limit and, when allowed, records one request.
// Returns a RateLimitError on denial. The store increments conditionally,
// so a denied request is never charged, concurrent bursts included.
func (l *Limiter) CheckAndRecord(ctx context.Context, clientID string) (*CheckResult, error) {
	if clientID == "" {
		return nil, ErrInvalidClientID
	}
	if !l.cfg.IsEnabled() {
		return &CheckResult{Allowed: true}, nil
	}

	count, windowEnd, charged, err := l.store.IncrementUsage(ctx, clientID, l.Window(), l.cfg.Requests)
	if err != nil {
		return nil, fmt.Errorf("failed to record usage for %s: %w", clientID, err)
	}
	if !charged {
		result := l.evaluate(clientID, count, windowEnd)
		return result, NewRateLimitError(clientID, result)
	}

	remaining := l.cfg.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return &CheckResult{Allowed: true, Remaining: remaining}, nil
}

func (l *Limiter) evaluate(clientID string, count int64, windowEnd time.Time) *CheckResult {
	remaining := l.cfg.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	if count >= l.cfg.Requests {
		return &CheckResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: time.Until(windowEnd),
			Reason: fmt.Sprintf("client %s exceeded %d requests per %ds window",
				clientID, l.cfg.Requests, l.cfg.WindowSeconds),
		}
	}
	return &CheckResult{Allowed: true, Remaining: remaining}
}
