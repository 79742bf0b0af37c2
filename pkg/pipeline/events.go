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

// Event is one progress notification emitted while a run executes.
// Progress is a percentage over the stages selected for the run.
type Event struct {
	RunID    string      `json:"runId"`
	Stage    string      `json:"stage"`
	Status   StageStatus `json:"status"`
	Progress float64     `json:"progress"`
	Error    string      `json:"error,omitempty"`
}

// Notifier receives progress events. Implementations must not block; the
// engine calls them inline between stages.
type Notifier func(Event)

func (n Notifier) notify(e Event) {
	if n != nil {
		n(e)
	}
}
