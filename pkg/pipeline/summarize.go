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
	"fmt"
	"log/slog"
	"strings"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/llms"
	"github.com/recapd/recapd/pkg/transcript"
)

// SummarizeStage turns the transcript into a mode-shaped summary. The
// prompt, the structure of the output, and the parse of the response all
// depend on the mode.
type SummarizeStage struct {
	provider llms.Provider
	tokens   *llms.TokenCounter
	cfg      *config.PipelineConfig
	logger   *slog.Logger
}

// NewSummarizeStage creates the summarize stage.
func NewSummarizeStage(provider llms.Provider, tokens *llms.TokenCounter, cfg *config.PipelineConfig, log *slog.Logger) *SummarizeStage {
	return &SummarizeStage{provider: provider, tokens: tokens, cfg: cfg, logger: log}
}

func (s *SummarizeStage) Name() string   { return StageSummarize }
func (s *SummarizeStage) Optional() bool { return false }

func (s *SummarizeStage) Run(ctx context.Context, state *State) error {
	if len(state.Transcript) == 0 {
		return &transcript.NoTranscriptError{ContentID: state.ContentID}
	}

	text := transcript.FullText(state.Transcript)
	if s.tokens != nil && s.cfg.MaxTranscriptTokens > 0 {
		before := s.tokens.Count(text)
		if before > s.cfg.MaxTranscriptTokens {
			text = s.tokens.Truncate(text, s.cfg.MaxTranscriptTokens)
			s.logger.Debug("transcript truncated for prompt",
				"contentID", state.ContentID,
				"tokens", before,
				"budget", s.cfg.MaxTranscriptTokens)
		}
	}

	resp, err := s.provider.Generate(ctx, llms.Request{
		System: systemPrompt(state.Mode, state.Language),
		Prompt: summaryPrompt(state.Mode, text),
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return &llms.ProviderError{
			Provider: s.provider.ModelName(),
			Message:  "empty summary response",
		}
	}

	state.Summary = parseSummary(state.Mode, resp.Text)
	s.logger.Debug("summary generated",
		"contentID", state.ContentID,
		"mode", state.Mode,
		"promptTokens", resp.PromptTokens,
		"completionTokens", resp.CompletionTokens)
	return nil
}

func systemPrompt(mode Mode, language string) string {
	var b strings.Builder
	b.WriteString("You are an expert content summarizer working from a spoken-word transcript. ")
	b.WriteString("Use only information present in the transcript. ")
	switch mode {
	case ModeQuick:
		b.WriteString("Be extremely concise.")
	case ModeResearch:
		b.WriteString("Be thorough and analytical; surface claims that merit verification.")
	case ModeEducational:
		b.WriteString("Write for a learner encountering this material for the first time.")
	default:
		b.WriteString("Balance completeness with readability.")
	}
	if language != "" {
		fmt.Fprintf(&b, " Respond in %s.", language)
	}
	return b.String()
}

func summaryPrompt(mode Mode, transcriptText string) string {
	var instr string
	switch mode {
	case ModeQuick:
		instr = "Summarize the transcript below as 3 to 5 bullet points. " +
			"Each bullet starts with \"- \" and captures one key takeaway."
	case ModeResearch:
		instr = "Write a detailed analytical summary of the transcript below. " +
			"Use \"## \" markdown headings to organize it by theme, and state " +
			"factual claims explicitly so they can be checked against sources."
	case ModeEducational:
		instr = "Summarize the transcript below as study material with exactly " +
			"these \"## \" sections: Overview, Learning Objectives, Key Concepts, " +
			"Practice Questions. Objectives, concepts, and questions are \"- \" bullets."
	default:
		instr = "Write a structured summary of the transcript below. Use \"## \" " +
			"markdown headings for the main topics and keep each section to a " +
			"few sentences."
	}
	return fmt.Sprintf("%s\n\nTranscript:\n%s", instr, transcriptText)
}

// parseSummary lifts the model's markdown into the structured summary. It
// tolerates sloppy output: anything it cannot place still survives in Text.
func parseSummary(mode Mode, text string) *Summary {
	summary := &Summary{Text: strings.TrimSpace(text)}

	var current *Section
	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(current.Content)
			summary.Sections = append(summary.Sections, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			flush()
			current = &Section{Title: strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))}
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			bullet := strings.TrimSpace(trimmed[2:])
			if bullet == "" {
				continue
			}
			summary.Bullets = append(summary.Bullets, bullet)
			if current != nil {
				current.Content += line + "\n"
				sortEducationalBullet(summary, current.Title, bullet)
			}
		default:
			if current != nil {
				current.Content += line + "\n"
			}
		}
	}
	flush()

	if mode == ModeEducational {
		backfillEducational(summary)
	}
	return summary
}

// sortEducationalBullet files a bullet under the educational field its
// section title names.
func sortEducationalBullet(summary *Summary, sectionTitle, bullet string) {
	switch {
	case strings.Contains(strings.ToLower(sectionTitle), "objective"):
		summary.Objectives = append(summary.Objectives, bullet)
	case strings.Contains(strings.ToLower(sectionTitle), "concept"):
		summary.KeyConcepts = append(summary.KeyConcepts, bullet)
	case strings.Contains(strings.ToLower(sectionTitle), "question"):
		summary.PracticeQuestions = append(summary.PracticeQuestions, bullet)
	}
}

// backfillEducational fills missing educational fields from whatever
// structure the model did produce, so the response shape stays stable.
func backfillEducational(summary *Summary) {
	if len(summary.Objectives) == 0 && len(summary.Bullets) > 0 {
		n := len(summary.Bullets)
		if n > 3 {
			n = 3
		}
		summary.Objectives = append(summary.Objectives, summary.Bullets[:n]...)
	}
}
