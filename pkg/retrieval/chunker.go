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

// Package retrieval turns transcripts into queryable vector-indexed chunks.
package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/transcript"
)

// Chunk is one retrievable window of transcript text. Timestamp is the
// start time of the first segment contributing to the chunk; it is the
// provenance anchor citations point at.
type Chunk struct {
	ID          string
	ContentID   string
	Text        string
	StartOffset int
	EndOffset   int
	Timestamp   float64
	Index       int
	Total       int
}

// Chunker splits transcripts into overlapping character windows.
type Chunker struct {
	size    int
	overlap int
	minSize int
}

// NewChunker creates a chunker from retrieval configuration.
func NewChunker(cfg *config.RetrievalConfig) *Chunker {
	return &Chunker{
		size:    cfg.ChunkSize,
		overlap: cfg.ChunkOverlap,
		minSize: cfg.MinChunkSize,
	}
}

// Chunk splits the segments into overlapping windows over the joined text.
// Consecutive windows share the configured overlap so sentences spanning a
// boundary stay retrievable. A trailing fragment below the minimum size is
// dropped unless it is the only chunk.
func (c *Chunker) Chunk(contentID string, segments []transcript.Segment) []Chunk {
	if len(segments) == 0 {
		return nil
	}

	text, starts := joinSegments(segments)
	if text == "" {
		return nil
	}

	var chunks []Chunk
	step := c.size - c.overlap

	for pos := 0; pos < len(text); pos += step {
		end := pos + c.size
		if end > len(text) {
			end = len(text)
		}

		window := strings.TrimSpace(text[pos:end])
		if window == "" {
			break
		}
		if len(window) < c.minSize && len(chunks) > 0 {
			break
		}

		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("%s-%d", contentID, idx),
			ContentID:   contentID,
			Text:        window,
			StartOffset: pos,
			EndOffset:   end,
			Timestamp:   timestampAt(starts, segments, pos),
			Index:       idx,
		})

		if end == len(text) {
			break
		}
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// joinSegments concatenates segment texts with single spaces and records
// each segment's start offset in the joined string.
func joinSegments(segments []transcript.Segment) (string, []int) {
	var b strings.Builder
	starts := make([]int, len(segments))
	for i, seg := range segments {
		if i > 0 {
			b.WriteString(" ")
		}
		starts[i] = b.Len()
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	return b.String(), starts
}

// timestampAt returns the start time of the segment containing offset.
func timestampAt(starts []int, segments []transcript.Segment, offset int) float64 {
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	if i == 0 {
		return segments[0].Start
	}
	return segments[i-1].Start
}
