package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/pkg/cache"
	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/llms"
	"github.com/recapd/recapd/pkg/observability"
	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/qa"
	"github.com/recapd/recapd/pkg/ratelimit"
	"github.com/recapd/recapd/pkg/retrieval"
	"github.com/recapd/recapd/pkg/transcript"
	"github.com/recapd/recapd/pkg/websearch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSource struct {
	segments []transcript.Segment
	err      error
}

func (s *stubSource) Fetch(ctx context.Context, contentID, language string) ([]transcript.Segment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.segments, nil
}

type stubProvider struct{ text string }

func (p *stubProvider) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	return &llms.Response{Text: p.text}, nil
}
func (p *stubProvider) ModelName() string { return "stub" }
func (p *stubProvider) Close() error      { return nil }

type stubSearch struct{}

func (s *stubSearch) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	return nil, nil
}

type stubRetriever struct{ chunks []retrieval.ScoredChunk }

func (s *stubRetriever) Search(ctx context.Context, contentID, queryText string, k int, threshold float32) ([]retrieval.ScoredChunk, error) {
	return s.chunks, nil
}

func testSegments() []transcript.Segment {
	return []transcript.Segment{
		{Start: 0, Text: "welcome to the lecture on distributed consensus"},
		{Start: 42, Text: "the raft protocol elects a single leader for each term"},
	}
}

const testSummary = "- The raft protocol elects a single leader for each term."

type serverOptions struct {
	source    transcript.Source
	limiter   *ratelimit.Limiter
	qaEngine  *qa.Engine
	modeTimes map[string]int
}

func newTestServer(t *testing.T, o serverOptions) *Server {
	t.Helper()

	if o.source == nil {
		o.source = &stubSource{segments: testSegments()}
	}

	pipeCfg := &config.PipelineConfig{ModeTimeouts: o.modeTimes}
	pipeCfg.SetDefaults()
	log := testLogger()

	stages := []pipeline.Stage{
		pipeline.NewExtractStage(o.source, nil, log),
		pipeline.NewSummarizeStage(&stubProvider{text: testSummary}, nil, pipeCfg, log),
		pipeline.NewResearchStage(&stubSearch{}, pipeCfg, log),
		pipeline.NewFactCheckStage(pipeCfg, log),
		pipeline.NewCiteStage(pipeCfg, log),
	}
	engine := pipeline.NewEngine(pipeCfg, stages, log)

	cacheCfg := &config.CacheConfig{}
	cacheCfg.SetDefaults()
	service := pipeline.NewService(engine, cache.NewMemoryStore(time.Hour), cacheCfg, o.limiter, log)

	serverCfg := &config.ServerConfig{}
	serverCfg.SetDefaults()

	return New(serverCfg, service, o.qaEngine, log, WithMetrics(observability.NewMetrics()), WithLimiter(o.limiter))
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSummarizeEndpoint(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	rec := postJSON(t, srv.Handler(), "/v1/summaries",
		map[string]any{"contentId": "video-1", "mode": "quick"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RunID   string `json:"runId"`
		Mode    string `json:"mode"`
		Summary *struct {
			Bullets []string `json:"bullets"`
		} `json:"summary"`
		Timeout bool `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "quick", resp.Mode)
	require.NotNil(t, resp.Summary)
	assert.NotEmpty(t, resp.Summary.Bullets)
	assert.False(t, resp.Timeout)
}

func TestSummarizeValidation(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	rec := postJSON(t, srv.Handler(), "/v1/summaries",
		map[string]any{"contentId": "video-1", "mode": "turbo"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, srv.Handler(), "/v1/summaries", map[string]any{"mode": "quick"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarizeUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, serverOptions{
		source: &stubSource{err: &transcript.NoTranscriptError{ContentID: "video-1"}},
	})

	rec := postJSON(t, srv.Handler(), "/v1/summaries",
		map[string]any{"contentId": "video-1", "mode": "quick"}, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "no transcript")
}

func TestSummarizeRateLimit(t *testing.T) {
	limitCfg := &config.RateLimitConfig{Requests: 1, WindowSeconds: 60}
	limitCfg.SetDefaults()
	limitCfg.Requests = 1
	limiter, err := ratelimit.New(limitCfg, ratelimit.NewMemoryStore())
	require.NoError(t, err)

	srv := newTestServer(t, serverOptions{limiter: limiter})
	headers := map[string]string{"X-Client-ID": "client-1"}

	rec := postJSON(t, srv.Handler(), "/v1/summaries",
		map[string]any{"contentId": "video-1", "mode": "quick"}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, srv.Handler(), "/v1/summaries",
		map[string]any{"contentId": "video-2", "mode": "quick"}, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different client identity is unaffected.
	rec = postJSON(t, srv.Handler(), "/v1/summaries",
		map[string]any{"contentId": "video-2", "mode": "quick"},
		map[string]string{"X-Client-ID": "client-2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSummarizeTimeoutReturnsPartial(t *testing.T) {
	srv := newTestServer(t, serverOptions{
		source:    &slowSource{delay: 2 * time.Second},
		modeTimes: map[string]int{"quick": 1},
	})

	rec := postJSON(t, srv.Handler(), "/v1/summaries",
		map[string]any{"contentId": "video-1", "mode": "quick"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Timeout bool `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Timeout)
}

type slowSource struct{ delay time.Duration }

func (s *slowSource) Fetch(ctx context.Context, contentID, language string) ([]transcript.Segment, error) {
	select {
	case <-time.After(s.delay):
		return testSegments(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestAskEndpoint(t *testing.T) {
	qaCfg := &config.QAConfig{}
	qaCfg.SetDefaults()
	retriever := &stubRetriever{chunks: []retrieval.ScoredChunk{
		{Chunk: retrieval.Chunk{ContentID: "video-1", Text: "the raft protocol elects a single leader", Timestamp: 42}, Score: 0.8},
	}}
	qaEngine, err := qa.NewEngine(retriever, &stubProvider{text: "One leader per term [1]."}, qaCfg, testLogger())
	require.NoError(t, err)

	srv := newTestServer(t, serverOptions{qaEngine: qaEngine})

	rec := postJSON(t, srv.Handler(), "/v1/ask",
		map[string]any{"contentId": "video-1", "question": "how many leaders?"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Answer, "One leader")
	assert.Equal(t, "high", resp.Confidence)
	require.NotEmpty(t, resp.Citations)
	assert.Equal(t, "00:42", resp.Citations[0].Display)
}

func TestAskInsufficientContext(t *testing.T) {
	qaCfg := &config.QAConfig{}
	qaCfg.SetDefaults()
	qaEngine, err := qa.NewEngine(&stubRetriever{}, &stubProvider{text: "x"}, qaCfg, testLogger())
	require.NoError(t, err)

	srv := newTestServer(t, serverOptions{qaEngine: qaEngine})

	rec := postJSON(t, srv.Handler(), "/v1/ask",
		map[string]any{"contentId": "video-1", "question": "anything"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, qa.InsufficientContext, resp.Answer)
	assert.Empty(t, resp.Citations)
}

func TestAskUnconfigured(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	rec := postJSON(t, srv.Handler(), "/v1/ask",
		map[string]any{"contentId": "video-1", "question": "anything"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAskRateLimit(t *testing.T) {
	limitCfg := &config.RateLimitConfig{Requests: 1, WindowSeconds: 60}
	limitCfg.SetDefaults()
	limitCfg.Requests = 1
	limiter, err := ratelimit.New(limitCfg, ratelimit.NewMemoryStore())
	require.NoError(t, err)

	qaCfg := &config.QAConfig{}
	qaCfg.SetDefaults()
	qaEngine, err := qa.NewEngine(&stubRetriever{}, &stubProvider{text: "x"}, qaCfg, testLogger())
	require.NoError(t, err)

	srv := newTestServer(t, serverOptions{limiter: limiter, qaEngine: qaEngine})
	headers := map[string]string{"X-Client-ID": "client-1"}
	body := map[string]any{"contentId": "video-1", "question": "anything"}

	rec := postJSON(t, srv.Handler(), "/v1/ask", body, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, srv.Handler(), "/v1/ask", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = postJSON(t, srv.Handler(), "/v1/ask", body,
		map[string]string{"X-Client-ID": "client-2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

// brokenStore fails every usage operation, standing in for backend trouble.
type brokenStore struct{}

func (s *brokenStore) GetUsage(ctx context.Context, clientID string, window time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("store unavailable")
}

func (s *brokenStore) IncrementUsage(ctx context.Context, clientID string, window time.Duration, limit int64) (int64, time.Time, bool, error) {
	return 0, time.Time{}, false, errors.New("store unavailable")
}

func (s *brokenStore) DeleteExpired(ctx context.Context, before time.Time) error { return nil }
func (s *brokenStore) Close() error                                              { return nil }

func TestAskLimiterFailureIsNotADenial(t *testing.T) {
	limitCfg := &config.RateLimitConfig{}
	limitCfg.SetDefaults()
	limiter, err := ratelimit.New(limitCfg, &brokenStore{})
	require.NoError(t, err)

	qaCfg := &config.QAConfig{}
	qaCfg.SetDefaults()
	qaEngine, err := qa.NewEngine(&stubRetriever{}, &stubProvider{text: "x"}, qaCfg, testLogger())
	require.NoError(t, err)

	srv := newTestServer(t, serverOptions{limiter: limiter, qaEngine: qaEngine})

	rec := postJSON(t, srv.Handler(), "/v1/ask",
		map[string]any{"contentId": "video-1", "question": "anything"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestEventsStream(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/summaries/video-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the subscription time to register, then publish an event.
	time.Sleep(50 * time.Millisecond)
	srv.hub.Publish("video-1", pipeline.Event{RunID: "r1", Stage: "extract", Status: pipeline.StageRunning})

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(2 * time.Second)
	lines := make(chan string, 10)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	var sawEvent, sawData bool
	for !(sawEvent && sawData) {
		select {
		case line := <-lines:
			if line == "event: progress" {
				sawEvent = true
			}
			if strings.HasPrefix(line, "data: ") {
				sawData = true
				assert.Contains(t, line, `"stage":"extract"`)
			}
		case <-deadline:
			t.Fatal("no event received on the stream")
		}
	}
}
