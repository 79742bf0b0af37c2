package qa

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/llms"
	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/retrieval"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQAConfig() *config.QAConfig {
	cfg := &config.QAConfig{}
	cfg.SetDefaults()
	return cfg
}

type fakeRetriever struct {
	mu        sync.Mutex
	chunks    []retrieval.ScoredChunk
	err       error
	lastQuery string
	lastK     int
	lastMin   float32
}

func (f *fakeRetriever) Search(ctx context.Context, contentID, queryText string, k int, threshold float32) ([]retrieval.ScoredChunk, error) {
	f.mu.Lock()
	f.lastQuery = queryText
	f.lastK = k
	f.lastMin = threshold
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeProvider struct {
	text string
	err  error
}

func (p *fakeProvider) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llms.Response{Text: p.text}, nil
}

func (p *fakeProvider) ModelName() string { return "fake" }
func (p *fakeProvider) Close() error      { return nil }

func scoredChunk(text string, timestamp float64, score float32) retrieval.ScoredChunk {
	return retrieval.ScoredChunk{
		Chunk: retrieval.Chunk{ContentID: "video-1", Text: text, Timestamp: timestamp},
		Score: score,
	}
}

func TestAskGroundedAnswer(t *testing.T) {
	retriever := &fakeRetriever{chunks: []retrieval.ScoredChunk{
		scoredChunk("the raft protocol elects a single leader for each term", 42, 0.85),
		scoredChunk("followers replicate the leader log", 95, 0.6),
	}}
	provider := &fakeProvider{text: "Raft elects exactly one leader per term [1]."}
	engine, err := NewEngine(retriever, provider, testQAConfig(), testLogger())
	require.NoError(t, err)

	answer, err := engine.Ask(context.Background(), "video-1", "how many leaders does raft elect?", nil)
	require.NoError(t, err)

	assert.Equal(t, "high", answer.Confidence)
	require.Len(t, answer.Citations, 1, "only the referenced excerpt is cited")
	assert.Equal(t, 42.0, answer.Citations[0].Timestamp)
	assert.Equal(t, "00:42", answer.Citations[0].Display)
}

func TestAskInsufficientContext(t *testing.T) {
	retriever := &fakeRetriever{}
	provider := &fakeProvider{text: "should never be called"}
	engine, err := NewEngine(retriever, provider, testQAConfig(), testLogger())
	require.NoError(t, err)

	answer, err := engine.Ask(context.Background(), "video-1", "what is the capital of France?", nil)
	require.NoError(t, err)

	assert.Equal(t, InsufficientContext, answer.Text)
	assert.Equal(t, "low", answer.Confidence)
	assert.Empty(t, answer.Citations)
}

func TestAskUsesConfiguredRetrievalParams(t *testing.T) {
	retriever := &fakeRetriever{}
	engine, err := NewEngine(retriever, &fakeProvider{text: "x"}, testQAConfig(), testLogger())
	require.NoError(t, err)

	_, err = engine.Ask(context.Background(), "video-1", "anything", nil)
	require.NoError(t, err)

	assert.Equal(t, 5, retriever.lastK)
	assert.InDelta(t, 0.3, float64(retriever.lastMin), 0.0001)
}

func TestAskHistorySharpensRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	engine, err := NewEngine(retriever, &fakeProvider{text: "x"}, testQAConfig(), testLogger())
	require.NoError(t, err)

	history := []Turn{
		{Role: RoleUser, Text: "tell me about leader election"},
		{Role: RoleAssistant, Text: "Raft elects one leader per term."},
	}
	_, err = engine.Ask(context.Background(), "video-1", "what happens when it fails?", history)
	require.NoError(t, err)

	assert.Contains(t, retriever.lastQuery, "leader election")
	assert.Contains(t, retriever.lastQuery, "what happens when it fails?")
	assert.NotContains(t, retriever.lastQuery, "Raft elects one leader per term",
		"assistant turns stay out of the retrieval query")
}

func TestAskConfidenceBands(t *testing.T) {
	tests := []struct {
		score float32
		want  string
	}{
		{0.9, "high"},
		{0.7, "high"},
		{0.6, "medium"},
		{0.5, "medium"},
		{0.4, "low"},
	}
	for _, tt := range tests {
		retriever := &fakeRetriever{chunks: []retrieval.ScoredChunk{
			scoredChunk("some supporting excerpt text", 10, tt.score),
		}}
		engine, err := NewEngine(retriever, &fakeProvider{text: "answer"}, testQAConfig(), testLogger())
		require.NoError(t, err)

		answer, err := engine.Ask(context.Background(), "video-1", "q", nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, answer.Confidence, "score %f", tt.score)
	}
}

func TestAskUnreferencedAnswerCitesAllChunks(t *testing.T) {
	retriever := &fakeRetriever{chunks: []retrieval.ScoredChunk{
		scoredChunk("excerpt one", 10, 0.8),
		scoredChunk("excerpt two", 20, 0.7),
	}}
	engine, err := NewEngine(retriever, &fakeProvider{text: "an answer without markers"}, testQAConfig(), testLogger())
	require.NoError(t, err)

	answer, err := engine.Ask(context.Background(), "video-1", "q", nil)
	require.NoError(t, err)
	assert.Len(t, answer.Citations, 2)
}

func TestAskValidation(t *testing.T) {
	engine, err := NewEngine(&fakeRetriever{}, &fakeProvider{}, testQAConfig(), testLogger())
	require.NoError(t, err)

	_, err = engine.Ask(context.Background(), "video-1", "   ", nil)
	require.Error(t, err)
	assert.True(t, pipeline.IsInputError(err))
}

func TestAskUpstreamErrors(t *testing.T) {
	t.Run("retriever failure", func(t *testing.T) {
		engine, err := NewEngine(&fakeRetriever{err: errors.New("index down")}, &fakeProvider{}, testQAConfig(), testLogger())
		require.NoError(t, err)

		_, err = engine.Ask(context.Background(), "video-1", "q", nil)
		assert.True(t, pipeline.IsUpstreamError(err))
	})

	t.Run("provider failure", func(t *testing.T) {
		retriever := &fakeRetriever{chunks: []retrieval.ScoredChunk{scoredChunk("text", 0, 0.9)}}
		engine, err := NewEngine(retriever, &fakeProvider{err: errors.New("llm down")}, testQAConfig(), testLogger())
		require.NoError(t, err)

		_, err = engine.Ask(context.Background(), "video-1", "q", nil)
		assert.True(t, pipeline.IsUpstreamError(err))
	})
}
