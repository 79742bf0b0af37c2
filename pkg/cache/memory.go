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

package cache

import (
	"context"
	"sync"
	"time"
)

// memEntry pairs a cache entry with the channel waiters block on.
type memEntry struct {
	entry Entry
	done  chan struct{}
}

// MemoryStore is the in-process Store implementation. Entries expire after
// a fixed TTL regardless of read frequency. Expiry is checked on access so
// no janitor goroutine is required.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store whose completed entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(fingerprint string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if me.entry.Expired(s.now()) {
		delete(s.entries, fingerprint)
		return nil, false
	}
	e := me.entry
	return &e, true
}

func (s *MemoryStore) PutInProgress(fingerprint string) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if me, ok := s.entries[fingerprint]; ok && !me.entry.Expired(now) {
		if me.entry.Status == StatusInProgress {
			return nil, ErrAlreadyInProgress
		}
		// Terminal entry still fresh; caller should have used Get first,
		// treat as a conflict rather than clobbering it.
		return nil, ErrAlreadyInProgress
	}

	me := &memEntry{
		entry: Entry{
			Fingerprint: fingerprint,
			Status:      StatusInProgress,
			CreatedAt:   now,
			// In-progress placeholders share the TTL so a crashed holder
			// cannot block the fingerprint forever.
			ExpiresAt: now.Add(s.ttl),
		},
		done: make(chan struct{}),
	}
	s.entries[fingerprint] = me

	return &Lease{store: s, fingerprint: fingerprint, done: me.done}, nil
}

func (s *MemoryStore) WaitResult(ctx context.Context, fingerprint string, timeout time.Duration) (*Entry, error) {
	s.mu.Lock()
	me, ok := s.entries[fingerprint]
	if !ok || me.entry.Expired(s.now()) {
		s.mu.Unlock()
		return nil, ErrLeaseTimeout
	}
	if me.entry.Status != StatusInProgress {
		e := me.entry
		s.mu.Unlock()
		return &e, nil
	}
	done := me.done
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return nil, ErrLeaseTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if me, ok := s.entries[fingerprint]; ok && me.entry.Status != StatusInProgress {
		e := me.entry
		return &e, nil
	}
	// Holder released without a result (cancellation); behave like a miss.
	return nil, ErrLeaseTimeout
}

func (s *MemoryStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fp, me := range s.entries {
		if me.entry.Status == StatusInProgress {
			continue
		}
		delete(s.entries, fp)
	}
}

// complete transitions the leased entry to a terminal state and wakes
// waiters. Failed entries are dropped immediately so the next identical
// request recomputes instead of replaying the error for a full TTL.
func (s *MemoryStore) complete(fingerprint string, done chan struct{}, result interface{}, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[fingerprint]
	if !ok || me.done != done {
		return
	}

	now := s.now()
	if cause != nil {
		me.entry.Status = StatusFailed
		me.entry.Err = cause
		// Visible to current waiters through the closed channel, then gone.
		close(done)
		delete(s.entries, fingerprint)
		return
	}

	me.entry.Status = StatusCompleted
	me.entry.Result = result
	me.entry.ExpiresAt = now.Add(s.ttl)
	close(done)
}

// release drops the leased entry without recording a result. Used on
// cancellation so subsequent identical requests are not blocked.
func (s *MemoryStore) release(fingerprint string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[fingerprint]
	if !ok || me.done != done {
		return
	}
	close(done)
	delete(s.entries, fingerprint)
}

// Lease is the exclusive in-progress marker for one fingerprint. Exactly
// one of Complete, Fail, or Release must be called; later calls are no-ops.
type Lease struct {
	store       *MemoryStore
	fingerprint string
	done        chan struct{}
	once        sync.Once
}

// Complete records a successful result and wakes waiters.
func (l *Lease) Complete(result interface{}) {
	l.once.Do(func() { l.store.complete(l.fingerprint, l.done, result, nil) })
}

// Fail records a failure, wakes waiters, and drops the entry.
func (l *Lease) Fail(err error) {
	l.once.Do(func() { l.store.complete(l.fingerprint, l.done, nil, err) })
}

// Release abandons the lease without a result.
func (l *Lease) Release() {
	l.once.Do(func() { l.store.release(l.fingerprint, l.done) })
}
