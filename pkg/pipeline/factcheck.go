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
)

// Evidence-overlap cutoffs for claim classification.
const (
	verifiedSupport = 0.5
	disputedSupport = 0.2
)

// Negation markers that flip partial evidence overlap into a dispute.
var negationMarkers = []string{"not ", "no ", "never ", "false", "incorrect", "myth", "debunk", "contrary"}

// FactCheckStage extracts declarative claims from the summary and scores
// each against the research findings by keyword overlap. It runs even when
// the findings list is empty; every claim then comes back unverifiable,
// which is itself useful signal to the reader.
type FactCheckStage struct {
	cfg    *config.PipelineConfig
	logger *slog.Logger
}

// NewFactCheckStage creates the fact-check stage.
func NewFactCheckStage(cfg *config.PipelineConfig, log *slog.Logger) *FactCheckStage {
	return &FactCheckStage{cfg: cfg, logger: log}
}

func (s *FactCheckStage) Name() string   { return StageFactCheck }
func (s *FactCheckStage) Optional() bool { return true }

func (s *FactCheckStage) Run(ctx context.Context, state *State) error {
	state.FactChecks = []FactCheck{}

	if state.Summary != nil {
		claims := extractClaims(state.Summary, s.cfg.MaxClaims)
		for _, claim := range claims {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			state.FactChecks = append(state.FactChecks, verifyClaim(claim, state.ResearchFindings))
		}
	}

	cred := credibility(state.FactChecks)
	state.Credibility = &cred

	s.logger.Debug("fact check completed",
		"contentID", state.ContentID,
		"claims", len(state.FactChecks),
		"credibility", cred)
	return nil
}

// extractClaims pulls checkable sentences out of the summary: declarative,
// long enough to carry a proposition, capped at limit.
func extractClaims(summary *Summary, limit int) []string {
	if limit <= 0 {
		limit = 10
	}

	candidates := append([]string(nil), summary.Bullets...)
	for _, sentence := range splitSentences(summary.Text) {
		candidates = append(candidates, sentence)
	}

	var claims []string
	seen := make(map[string]struct{})
	for _, c := range candidates {
		c = strings.TrimSpace(strings.TrimSuffix(c, "."))
		if len(c) < 25 || strings.HasSuffix(c, "?") || strings.HasPrefix(c, "#") {
			continue
		}
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		claims = append(claims, c)
		if len(claims) >= limit {
			break
		}
	}
	return claims
}

// verifyClaim scores one claim against the gathered evidence.
func verifyClaim(claim string, findings []ResearchFinding) FactCheck {
	words := keywords(claim, 10)

	best := 0.0
	negated := false
	var sources []string
	for _, finding := range findings {
		for _, source := range finding.Sources {
			evidence := source.Title + " " + source.Snippet
			score := overlapScore(words, evidence)
			if score < disputedSupport {
				continue
			}
			sources = append(sources, source.URL)
			if score > best {
				best = score
			}
			if containsNegation(evidence) {
				negated = true
			}
		}
	}

	check := FactCheck{Claim: claim, Confidence: best, Sources: sources}
	switch {
	case best >= verifiedSupport && !negated:
		check.Status = StatusVerified
	case best >= disputedSupport && negated:
		check.Status = StatusDisputed
	default:
		check.Status = StatusUnverifiable
	}
	return check
}

func containsNegation(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range negationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// credibility is the mean confidence across checks, zero when none ran.
func credibility(checks []FactCheck) float64 {
	if len(checks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range checks {
		sum += c.Confidence
	}
	return sum / float64(len(checks))
}
