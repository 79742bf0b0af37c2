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

package server

import (
	"sync"

	"github.com/recapd/recapd/pkg/pipeline"
)

// eventHub fans pipeline progress events out to event-stream subscribers,
// keyed by content ID. Slow subscribers drop events rather than block the
// pipeline.
type eventHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan pipeline.Event]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]map[chan pipeline.Event]struct{})}
}

// Subscribe registers for events about one content item. The returned
// cancel function must be called exactly once.
func (h *eventHub) Subscribe(contentID string) (<-chan pipeline.Event, func()) {
	ch := make(chan pipeline.Event, 64)

	h.mu.Lock()
	if h.subs[contentID] == nil {
		h.subs[contentID] = make(map[chan pipeline.Event]struct{})
	}
	h.subs[contentID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[contentID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, contentID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers for the content item.
func (h *eventHub) Publish(contentID string, event pipeline.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[contentID] {
		select {
		case ch <- event:
		default:
		}
	}
}
