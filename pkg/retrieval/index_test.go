package retrieval

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/transcript"
	"github.com/recapd/recapd/pkg/vector"
)

// freqEmbedder maps text to a normalized letter-frequency vector. Identical
// texts embed identically, so exact-text queries score 1.0.
type freqEmbedder struct{}

func (e *freqEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 26)
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
		if r >= 'A' && r <= 'Z' {
			vec[r-'A']++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (e *freqEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *freqEmbedder) Dimension() int    { return 26 }
func (e *freqEmbedder) ModelName() string { return "freq-test" }
func (e *freqEmbedder) Close() error      { return nil }

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	cfg := &config.RetrievalConfig{ChunkSize: 120, ChunkOverlap: 20, MinChunkSize: 10}
	cfg.SetDefaults()
	cfg.ChunkSize = 120
	cfg.ChunkOverlap = 20
	cfg.MinChunkSize = 10

	provider, err := vector.NewChromemProvider()
	require.NoError(t, err)

	index, err := NewIndex(cfg, provider, &freqEmbedder{})
	require.NoError(t, err)
	return index
}

func sampleSegments() []transcript.Segment {
	return []transcript.Segment{
		{Start: 0, Text: "welcome to the lecture on distributed consensus algorithms"},
		{Start: 15, Text: "the raft protocol elects a single leader for each term"},
		{Start: 34, Text: "followers replicate the leader log and acknowledge entries"},
		{Start: 52, Text: "when the leader fails a new election begins after a timeout"},
		{Start: 70, Text: "quorum intersection guarantees at most one leader per term"},
	}
}

func TestIndexAndSearchRoundTrip(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	count, err := index.IndexTranscript(ctx, "video-1", sampleSegments())
	require.NoError(t, err)
	require.Greater(t, count, 1)

	// Query with the exact text of an indexed chunk; it must come back as
	// the top result with a near-perfect score.
	chunks := index.chunker.Chunk("video-1", sampleSegments())
	require.NotEmpty(t, chunks)

	exact := chunks[0].Text
	results, err := index.Search(ctx, "video-1", exact, 3, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, exact, results[0].Text)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

func TestSearchThresholdFiltersAll(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	_, err := index.IndexTranscript(ctx, "video-1", sampleSegments())
	require.NoError(t, err)

	results, err := index.Search(ctx, "video-1", "zzzz", 5, 0.99)
	require.NoError(t, err, "an empty result is not an error")
	assert.Empty(t, results)
}

func TestReindexReplacesChunks(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	first, err := index.IndexTranscript(ctx, "video-1", sampleSegments())
	require.NoError(t, err)
	require.Greater(t, first, 1)

	// Re-index with a much shorter transcript; stale chunks must not
	// survive.
	short := []transcript.Segment{{Start: 0, Text: "a brief replacement transcript"}}
	second, err := index.IndexTranscript(ctx, "video-1", short)
	require.NoError(t, err)
	require.Equal(t, 1, second)

	results, err := index.Search(ctx, "video-1", "leader election raft", 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1, "only the replacement chunk remains")
	assert.Equal(t, "a brief replacement transcript", results[0].Text)
}

func TestSearchScopedPerContent(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	_, err := index.IndexTranscript(ctx, "video-1", sampleSegments())
	require.NoError(t, err)
	_, err = index.IndexTranscript(ctx, "video-2", []transcript.Segment{
		{Start: 0, Text: "a cooking show about sourdough bread"},
	})
	require.NoError(t, err)

	results, err := index.Search(ctx, "video-2", "sourdough bread", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "video-2", results[0].ContentID)
}

func TestSearchMetadataRoundTrip(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	_, err := index.IndexTranscript(ctx, "video-1", sampleSegments())
	require.NoError(t, err)

	results, err := index.Search(ctx, "video-1", "raft leader election term", 3, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.Equal(t, "video-1", r.ContentID)
		assert.GreaterOrEqual(t, r.Timestamp, 0.0)
		assert.Greater(t, r.Total, 0)
		assert.Less(t, r.Index, r.Total)
	}
}

func TestPurgeRemovesContent(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	_, err := index.IndexTranscript(ctx, "video-1", sampleSegments())
	require.NoError(t, err)
	require.NoError(t, index.Purge(ctx, "video-1"))

	results, err := index.Search(ctx, "video-1", "leader", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
