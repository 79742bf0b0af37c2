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
	"strings"
	"unicode"
)

// Canonical stage names, in execution order.
const (
	StageExtract   = "extract"
	StageSummarize = "summarize"
	StageResearch  = "research"
	StageFactCheck = "factcheck"
	StageCite      = "cite"
)

// stageOrder fixes the relative position of every stage regardless of
// which subset a mode selects.
var stageOrder = []string{StageExtract, StageSummarize, StageResearch, StageFactCheck, StageCite}

// Stage is one pipeline step. Run reads and enriches the shared state and
// must not spawn work that outlives its own background tasks uncontrolled.
// Optional stages fail soft: the engine records the failure and moves on.
type Stage interface {
	Name() string
	Optional() bool
	Run(ctx context.Context, state *State) error
}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS from one hour up.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// stopwords excluded from keyword overlap scoring.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {},
	"which": {}, "will": {}, "with": {}, "not": {}, "they": {}, "their": {},
	"about": {}, "into": {}, "also": {}, "can": {}, "more": {}, "than": {},
}

// keywords lowercases text, strips punctuation, and returns content words
// of four letters or more, capped at limit.
func keywords(text string, limit int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var words []string
	seen := make(map[string]struct{})
	for _, w := range fields {
		if len(w) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
		if limit > 0 && len(words) >= limit {
			break
		}
	}
	return words
}

// overlapScore returns the fraction of words found in text.
func overlapScore(words []string, text string) float64 {
	if len(words) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

// splitSentences breaks text on sentence-ending punctuation. It is meant
// for prose produced by the summarizer, not arbitrary input.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// truncate shortens s to at most n bytes on a word boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
