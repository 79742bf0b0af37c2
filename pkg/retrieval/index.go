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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/embedders"
	"github.com/recapd/recapd/pkg/logger"
	"github.com/recapd/recapd/pkg/transcript"
	"github.com/recapd/recapd/pkg/vector"
)

// ScoredChunk pairs a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Index chunks transcripts, embeds the chunks, and answers similarity
// queries. Each content item gets its own collection so queries never
// cross items.
type Index struct {
	provider vector.Provider
	embedder embedders.Embedder
	chunker  *Chunker

	// sem bounds concurrent indexing jobs across pipelines.
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewIndex creates a retrieval index over the given backend and embedder.
func NewIndex(cfg *config.RetrievalConfig, provider vector.Provider, embedder embedders.Embedder) (*Index, error) {
	if provider == nil {
		return nil, fmt.Errorf("vector provider is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &Index{
		provider: provider,
		embedder: embedder,
		chunker:  NewChunker(cfg),
		sem:      semaphore.NewWeighted(int64(cfg.IndexWorkers)),
		logger:   logger.GetLogger(),
	}, nil
}

// CollectionName returns the per-content collection name.
func CollectionName(contentID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, contentID)
	return "content_" + sanitized
}

// IndexTranscript chunks and embeds the segments and replaces any prior
// chunks for contentID. The replace is atomic with respect to other
// indexing runs for the same item: the old collection is dropped and the
// new documents are written before the method returns.
func (ix *Index) IndexTranscript(ctx context.Context, contentID string, segments []transcript.Segment) (int, error) {
	if contentID == "" {
		return 0, fmt.Errorf("content ID is required")
	}

	chunks := ix.chunker.Chunk(contentID, segments)
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := ix.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("failed to acquire indexing slot: %w", err)
	}
	defer ix.sem.Release(1)

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks for %s: %w", contentID, err)
	}

	collection := CollectionName(contentID)
	if err := ix.provider.DeleteCollection(ctx, collection); err != nil {
		return 0, fmt.Errorf("failed to drop stale chunks for %s: %w", contentID, err)
	}

	docs := make([]vector.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vector.Document{
			ID:      chunk.ID,
			Vector:  vectors[i],
			Content: chunk.Text,
			Metadata: map[string]any{
				"content_id":   chunk.ContentID,
				"timestamp":    chunk.Timestamp,
				"start_offset": chunk.StartOffset,
				"end_offset":   chunk.EndOffset,
				"chunk_index":  chunk.Index,
				"chunk_total":  chunk.Total,
			},
		}
	}

	if err := ix.provider.Upsert(ctx, collection, docs); err != nil {
		return 0, fmt.Errorf("failed to index chunks for %s: %w", contentID, err)
	}

	ix.logger.Debug("indexed transcript",
		"contentID", contentID,
		"chunks", len(chunks),
		"backend", ix.provider.Name())
	return len(chunks), nil
}

// Search returns up to k chunks for contentID similar to queryText,
// ordered by similarity descending and filtered to scores at or above
// threshold. No qualifying chunk yields an empty result, not an error.
func (ix *Index) Search(ctx context.Context, contentID, queryText string, k int, threshold float32) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVector, err := ix.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := ix.provider.Search(ctx, CollectionName(contentID), queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("search failed for %s: %w", contentID, err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Score < threshold {
			continue
		}
		chunks = append(chunks, ScoredChunk{
			Chunk: Chunk{
				ID:          r.ID,
				ContentID:   metaString(r.Metadata, "content_id"),
				Text:        r.Content,
				StartOffset: metaInt(r.Metadata, "start_offset"),
				EndOffset:   metaInt(r.Metadata, "end_offset"),
				Timestamp:   metaFloat(r.Metadata, "timestamp"),
				Index:       metaInt(r.Metadata, "chunk_index"),
				Total:       metaInt(r.Metadata, "chunk_total"),
			},
			Score: r.Score,
		})
	}
	return chunks, nil
}

// Purge drops all chunks for a content item.
func (ix *Index) Purge(ctx context.Context, contentID string) error {
	return ix.provider.DeleteCollection(ctx, CollectionName(contentID))
}

// Metadata values come back as strings from backends that stringify
// payloads, so the readers parse defensively.

func metaString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func metaInt(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	default:
		n, _ := strconv.Atoi(fmt.Sprint(v))
		return n
	}
}

func metaFloat(m map[string]any, key string) float64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case int:
		return float64(val)
	default:
		f, _ := strconv.ParseFloat(fmt.Sprint(v), 64)
		return f
	}
}
