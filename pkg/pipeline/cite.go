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
	"github.com/recapd/recapd/pkg/transcript"
)

const (
	// maxCitedPoints bounds how many summary statements get citations.
	maxCitedPoints = 15

	// minKeywordHits is the overlap a segment needs to back a statement.
	minKeywordHits = 2

	excerptLength = 120
)

// CiteStage anchors summary statements back to transcript positions. It
// matches each statement to the transcript segment sharing the most
// keywords; statements without a confident match simply get no citation.
type CiteStage struct {
	cfg    *config.PipelineConfig
	logger *slog.Logger
}

// NewCiteStage creates the cite stage.
func NewCiteStage(cfg *config.PipelineConfig, log *slog.Logger) *CiteStage {
	return &CiteStage{cfg: cfg, logger: log}
}

func (s *CiteStage) Name() string   { return StageCite }
func (s *CiteStage) Optional() bool { return true }

func (s *CiteStage) Run(ctx context.Context, state *State) error {
	state.Citations = []Citation{}
	if state.Summary == nil || len(state.Transcript) == 0 {
		return nil
	}

	points := summaryPoints(state.Summary)
	inline := s.cfg.InlineCitations != nil && *s.cfg.InlineCitations
	text := state.Summary.Text

	for _, point := range points {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		segment, ok := bestSegment(point, state.Transcript)
		if !ok {
			continue
		}
		state.Citations = append(state.Citations, Citation{
			Timestamp: segment.Start,
			Display:   FormatTimestamp(segment.Start),
			Excerpt:   truncate(strings.TrimSpace(segment.Text), excerptLength),
		})
		if inline {
			marker := fmt.Sprintf("%s [%d]", point, len(state.Citations))
			text = strings.Replace(text, point, marker, 1)
		}
	}

	if inline {
		state.Summary.Text = text
	}

	s.logger.Debug("citations generated",
		"contentID", state.ContentID,
		"points", len(points),
		"citations", len(state.Citations))
	return nil
}

// summaryPoints lists the statements worth citing: bullets when present,
// otherwise sentences of the summary text.
func summaryPoints(summary *Summary) []string {
	points := summary.Bullets
	if len(points) == 0 {
		points = splitSentences(summary.Text)
	}
	if len(points) > maxCitedPoints {
		points = points[:maxCitedPoints]
	}
	return points
}

// bestSegment finds the transcript segment sharing the most keywords with
// the statement, requiring at least minKeywordHits to count as a match.
func bestSegment(point string, segments []transcript.Segment) (transcript.Segment, bool) {
	words := keywords(point, 10)
	if len(words) == 0 {
		return transcript.Segment{}, false
	}

	bestHits := 0
	var best transcript.Segment
	for _, seg := range segments {
		lower := strings.ToLower(seg.Text)
		hits := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = seg
		}
	}
	if bestHits < minKeywordHits {
		return transcript.Segment{}, false
	}
	return best, true
}
