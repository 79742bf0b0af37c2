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

// Package qa answers questions about summarized content, grounded strictly
// in the retrieved transcript chunks. Questions the transcript cannot
// answer get a fixed insufficient-context response instead of a guess.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/llms"
	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/retrieval"
)

// InsufficientContext is the exact answer returned when retrieval finds no
// qualifying chunks. Clients key off it, so it never varies.
const InsufficientContext = "I don't have enough information in this content to answer that question."

// Confidence cuts over the best retrieval score.
const (
	highConfidenceScore   = 0.7
	mediumConfidenceScore = 0.5
)

// Role labels a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Answer is a grounded response to one question.
type Answer struct {
	Text string `json:"text"`

	// Confidence is "high", "medium", or "low", from the best retrieval
	// score backing the answer.
	Confidence string `json:"confidence"`

	// Citations anchor the answer to transcript positions. Empty for the
	// insufficient context response.
	Citations []pipeline.Citation `json:"citations,omitempty"`
}

// Retriever is the slice of the retrieval index the engine needs.
// Satisfied by *retrieval.Index.
type Retriever interface {
	Search(ctx context.Context, contentID, queryText string, k int, threshold float32) ([]retrieval.ScoredChunk, error)
}

// Engine answers questions over indexed content.
type Engine struct {
	retriever Retriever
	provider  llms.Provider
	cfg       *config.QAConfig
	logger    *slog.Logger
}

// NewEngine creates a question answering engine.
func NewEngine(retriever Retriever, provider llms.Provider, cfg *config.QAConfig, log *slog.Logger) (*Engine, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("generation provider is required")
	}
	return &Engine{retriever: retriever, provider: provider, cfg: cfg, logger: log}, nil
}

// Ask answers question about contentID. history carries the conversation so
// far, oldest first; recent user turns sharpen retrieval for follow-ups
// like "what did they say about that?".
func (e *Engine) Ask(ctx context.Context, contentID, question string, history []Turn) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, pipeline.NewInputError("question", "must not be empty")
	}

	query := e.retrievalQuery(question, history)
	chunks, err := e.retriever.Search(ctx, contentID, query, e.cfg.TopK, e.cfg.ScoreThreshold)
	if err != nil {
		return nil, pipeline.NewUpstreamError("qa", err)
	}

	if len(chunks) == 0 {
		e.logger.Debug("no qualifying chunks for question",
			"contentID", contentID, "question", truncateQuestion(question))
		return &Answer{Text: InsufficientContext, Confidence: "low"}, nil
	}

	resp, err := e.provider.Generate(ctx, llms.Request{
		System: answerSystemPrompt,
		Prompt: answerPrompt(question, chunks),
	})
	if err != nil {
		return nil, pipeline.NewUpstreamError("qa", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return &Answer{Text: InsufficientContext, Confidence: "low"}, nil
	}

	answer := &Answer{
		Text:       text,
		Confidence: confidenceLabel(chunks[0].Score),
		Citations:  citationsFor(chunks, text),
	}

	e.logger.Debug("question answered",
		"contentID", contentID,
		"chunks", len(chunks),
		"confidence", answer.Confidence)
	return answer, nil
}

// retrievalQuery combines the question with the last configured number of
// user turns so pronoun-heavy follow-ups still retrieve the right chunks.
func (e *Engine) retrievalQuery(question string, history []Turn) string {
	limit := e.cfg.MaxHistoryTurns
	var recent []string
	for i := len(history) - 1; i >= 0 && len(recent) < limit; i-- {
		if history[i].Role == RoleUser {
			recent = append([]string{history[i].Text}, recent...)
		}
	}
	if len(recent) == 0 {
		return question
	}
	return strings.Join(recent, " ") + " " + question
}

const answerSystemPrompt = "You answer questions about a specific piece of content " +
	"using only the numbered transcript excerpts provided. If the excerpts do not " +
	"contain the answer, say so plainly. Reference excerpts as [n] where helpful. " +
	"Never use outside knowledge."

func answerPrompt(question string, chunks []retrieval.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Transcript excerpts:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, pipeline.FormatTimestamp(chunk.Timestamp), chunk.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}

// citationsFor returns citations for the excerpts the answer references
// inline, or all retrieved excerpts when the answer names none.
func citationsFor(chunks []retrieval.ScoredChunk, answerText string) []pipeline.Citation {
	referenced := make([]retrieval.ScoredChunk, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.Contains(answerText, fmt.Sprintf("[%d]", i+1)) {
			referenced = append(referenced, chunk)
		}
	}
	if len(referenced) == 0 {
		referenced = chunks
	}

	citations := make([]pipeline.Citation, len(referenced))
	for i, chunk := range referenced {
		citations[i] = pipeline.Citation{
			Timestamp: chunk.Timestamp,
			Display:   pipeline.FormatTimestamp(chunk.Timestamp),
			Excerpt:   excerpt(chunk.Text),
		}
	}
	return citations
}

func confidenceLabel(score float32) string {
	switch {
	case score >= highConfidenceScore:
		return "high"
	case score >= mediumConfidenceScore:
		return "medium"
	default:
		return "low"
	}
}

func excerpt(text string) string {
	const limit = 120
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

func truncateQuestion(q string) string {
	if len(q) <= 80 {
		return q
	}
	return q[:80] + "..."
}
