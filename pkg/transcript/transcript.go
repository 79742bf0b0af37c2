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

// Package transcript defines the transcript source collaborator: ordered
// timestamped segments fetched from an external captions service.
package transcript

import (
	"context"
	"strings"
)

// Segment is one timestamped piece of transcript text.
type Segment struct {
	// Start is the segment start time in seconds from the beginning.
	Start float64 `json:"start"`

	// Duration is the segment length in seconds, when the source knows it.
	Duration float64 `json:"duration,omitempty"`

	Text string `json:"text"`
}

// Source fetches a transcript for a content item.
type Source interface {
	// Fetch returns the ordered segments for contentID in the requested
	// language (empty means the source default). Fails with
	// ErrNoTranscript or ErrUnsupportedLanguage.
	Fetch(ctx context.Context, contentID, language string) ([]Segment, error)
}

// FullText joins segment texts with single spaces.
func FullText(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	return b.String()
}
