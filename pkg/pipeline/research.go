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

import (
	"context"
	"log/slog"
	"strings"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/websearch"
)

// ResearchStage derives search queries from the summary and gathers
// supporting context from the web. The whole stage degrades soft: when the
// search provider is down the state ends up with an empty findings list and
// the run moves on.
type ResearchStage struct {
	search websearch.Provider
	cfg    *config.PipelineConfig
	logger *slog.Logger
}

// NewResearchStage creates the research stage.
func NewResearchStage(search websearch.Provider, cfg *config.PipelineConfig, log *slog.Logger) *ResearchStage {
	return &ResearchStage{search: search, cfg: cfg, logger: log}
}

func (s *ResearchStage) Name() string   { return StageResearch }
func (s *ResearchStage) Optional() bool { return true }

func (s *ResearchStage) Run(ctx context.Context, state *State) error {
	// Findings default to present-but-empty so downstream stages and the
	// response shape never see a nil for a mode that ran research.
	state.ResearchFindings = []ResearchFinding{}

	if state.Summary == nil {
		return nil
	}

	queries := deriveQueries(state.Summary, s.cfg.MaxSearchQueries)
	for _, query := range queries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		results, err := s.search.Search(ctx, query)
		if err != nil {
			s.logger.Warn("web search failed, continuing without results",
				"contentID", state.ContentID, "query", query, "error", err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		state.ResearchFindings = append(state.ResearchFindings, ResearchFinding{
			Topic:   query,
			Sources: results,
			Note:    synthesizeNote(results),
		})
	}

	s.logger.Debug("research completed",
		"contentID", state.ContentID,
		"queries", len(queries),
		"findings", len(state.ResearchFindings))
	return nil
}

// deriveQueries picks research topics from the summary structure: section
// titles first, then leading bullets, then the opening sentence.
func deriveQueries(summary *Summary, limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	var queries []string
	seen := make(map[string]struct{})
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || len(queries) >= limit {
			return
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
	}

	for _, sec := range summary.Sections {
		add(sec.Title)
	}
	for _, bullet := range summary.Bullets {
		add(truncate(bullet, 90))
	}
	if len(queries) == 0 {
		if sentences := splitSentences(summary.Text); len(sentences) > 0 {
			add(truncate(sentences[0], 90))
		}
	}
	return queries
}

// synthesizeNote condenses the top snippets into a short note.
func synthesizeNote(results []websearch.Result) string {
	var parts []string
	for i, r := range results {
		if i >= 2 {
			break
		}
		if snippet := strings.TrimSpace(r.Snippet); snippet != "" {
			parts = append(parts, truncate(snippet, 200))
		}
	}
	return strings.Join(parts, " ")
}
