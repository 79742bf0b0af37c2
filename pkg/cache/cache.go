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

// Package cache implements the fingerprint-keyed result cache with an
// in-progress lease that collapses duplicate concurrent requests for the
// same fingerprint into one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Fingerprint derives the deterministic cache key for a request. Feature
// flags are sorted so set ordering never changes the key.
func Fingerprint(contentID, mode string, features []string) string {
	sorted := make([]string, len(features))
	copy(sorted, features)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(contentID))
	h.Write([]byte{'|'})
	h.Write([]byte(mode))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// Status describes an entry's lifecycle position.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is one cached computation, either terminal or in flight.
type Entry struct {
	Fingerprint string
	Status      Status
	Result      interface{}
	Err         error
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the entry's TTL has elapsed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is the cache contract. At most one lease exists per fingerprint at
// any time; duplicate callers wait on the holder through WaitResult.
type Store interface {
	// Get returns the entry for a fingerprint, or false when absent or
	// expired.
	Get(fingerprint string) (*Entry, bool)

	// PutInProgress acquires the exclusive lease for a fingerprint.
	// Returns ErrAlreadyInProgress when another holder is computing.
	PutInProgress(fingerprint string) (*Lease, error)

	// WaitResult blocks until the in-flight computation for a fingerprint
	// reaches a terminal state, the context is cancelled, or the wait
	// timeout elapses (ErrLeaseTimeout).
	WaitResult(ctx context.Context, fingerprint string, timeout time.Duration) (*Entry, error)

	// Purge drops every entry. Test and shutdown hook.
	Purge()
}
