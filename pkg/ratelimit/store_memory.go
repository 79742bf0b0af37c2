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

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store persists per-client request counts.
type Store interface {
	// GetUsage returns the current count and window end for a client.
	// A missing or expired record reads as zero with a fresh window.
	GetUsage(ctx context.Context, clientID string, window time.Duration) (int64, time.Time, error)

	// IncrementUsage adds one request to the client's window when the
	// current count is below limit, resetting an expired window first. The
	// check and the increment are one atomic step so a denied request is
	// never charged. A limit of zero or less means no cap. Returns the
	// count after the call, the window end, and whether the request was
	// charged.
	IncrementUsage(ctx context.Context, clientID string, window time.Duration, limit int64) (int64, time.Time, bool, error)

	// DeleteExpired drops records whose window ended before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) error

	Close() error
}

type usageRecord struct {
	Count     int64
	WindowEnd time.Time
}

// MemoryStore is the in-process Store implementation. Thread-safe; suitable
// for single-instance deployments and tests.
type MemoryStore struct {
	data map[string]*usageRecord
	mu   sync.RWMutex
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*usageRecord),
		now:  time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetUsage(ctx context.Context, clientID string, window time.Duration) (int64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	record, exists := s.data[clientID]
	if !exists || record.WindowEnd.Before(now) {
		return 0, now.Add(window), nil
	}
	return record.Count, record.WindowEnd, nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, clientID string, window time.Duration, limit int64) (int64, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	record, exists := s.data[clientID]
	if !exists || record.WindowEnd.Before(now) {
		record = &usageRecord{Count: 1, WindowEnd: now.Add(window)}
		s.data[clientID] = record
		return record.Count, record.WindowEnd, true, nil
	}

	if limit > 0 && record.Count >= limit {
		return record.Count, record.WindowEnd, false, nil
	}
	record.Count++
	return record.Count, record.WindowEnd, true, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for clientID, record := range s.data {
		if record.WindowEnd.Before(before) {
			delete(s.data, clientID)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*usageRecord)
	return nil
}

// Size returns the number of tracked clients (for testing).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
