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

// Package pipeline implements the summarization pipeline: shared state,
// the five agent stages, and the orchestration engine that sequences them
// per mode and feature flags.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/recapd/recapd/pkg/transcript"
	"github.com/recapd/recapd/pkg/websearch"
)

// Mode fixes the stage set and overall time budget for a run.
type Mode string

const (
	ModeQuick       Mode = "quick"
	ModeStandard    Mode = "standard"
	ModeResearch    Mode = "research"
	ModeEducational Mode = "educational"
)

// ValidMode reports whether m names a known mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeQuick, ModeStandard, ModeResearch, ModeEducational:
		return true
	}
	return false
}

// Features are the independently togglable flags. They extend a mode's
// default stage set and never remove mandatory stages.
type Features struct {
	FactChecking bool `json:"factChecking,omitempty"`
	WebResearch  bool `json:"webResearch,omitempty"`
	Citations    bool `json:"citations,omitempty"`
	Translation  bool `json:"translation,omitempty"`
}

// Flags returns the enabled feature names in a canonical order, the form
// that feeds the cache fingerprint.
func (f Features) Flags() []string {
	var flags []string
	if f.Citations {
		flags = append(flags, "citations")
	}
	if f.FactChecking {
		flags = append(flags, "factChecking")
	}
	if f.Translation {
		flags = append(flags, "translation")
	}
	if f.WebResearch {
		flags = append(flags, "webResearch")
	}
	return flags
}

// Section is one titled part of a structured summary.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Summary is the summarize stage output. Later stages may enrich it (the
// cite stage rewrites Text with inline markers) but never discard parts.
type Summary struct {
	Text     string    `json:"text"`
	Sections []Section `json:"sections,omitempty"`
	Bullets  []string  `json:"bullets,omitempty"`

	// Educational mode extras.
	Objectives        []string `json:"objectives,omitempty"`
	KeyConcepts       []string `json:"keyConcepts,omitempty"`
	PracticeQuestions []string `json:"practiceQuestions,omitempty"`
}

// ResearchFinding is one researched topic with its supporting sources.
type ResearchFinding struct {
	Topic   string             `json:"topic"`
	Sources []websearch.Result `json:"sources"`
	Note    string             `json:"note,omitempty"`
}

// VerificationStatus classifies a fact-checked claim.
type VerificationStatus string

const (
	StatusVerified     VerificationStatus = "verified"
	StatusDisputed     VerificationStatus = "disputed"
	StatusUnverifiable VerificationStatus = "unverifiable"
)

// FactCheck is one verified claim.
type FactCheck struct {
	Claim      string             `json:"claim"`
	Status     VerificationStatus `json:"status"`
	Confidence float64            `json:"confidence"`
	Sources    []string           `json:"sources,omitempty"`
}

// Citation links a summary statement back to a transcript position.
type Citation struct {
	Timestamp float64 `json:"timestamp"`
	Display   string  `json:"display"`
	Excerpt   string  `json:"excerpt"`
}

// StageStatus is one stage's terminal (or current) state.
type StageStatus string

const (
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageRecord is one append-only trace entry. Records are never mutated
// after they are appended.
type StageRecord struct {
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	StartedAt  time.Time   `json:"startedAt"`
	DurationMs int64       `json:"durationMs"`
	Error      string      `json:"error,omitempty"`
}

// State is the mutable record threaded through all stages. One goroutine
// owns a State for the duration of a run; stages execute sequentially and
// communicate only through it. Stages append and enrich, never remove or
// reorder previously written fields.
type State struct {
	RunID     string `json:"runId"`
	ContentID string `json:"contentId"`
	SourceURL string `json:"sourceUrl,omitempty"`

	Mode     Mode     `json:"mode"`
	Features Features `json:"features"`
	Language string   `json:"language,omitempty"`

	Transcript []transcript.Segment `json:"transcript,omitempty"`

	Summary          *Summary          `json:"summary,omitempty"`
	ResearchFindings []ResearchFinding `json:"researchFindings,omitempty"`
	FactChecks       []FactCheck       `json:"factChecks,omitempty"`

	// Credibility is the mean fact-check confidence, set only when the
	// fact-check stage ran. Zero when no claims were checked.
	Credibility *float64 `json:"credibility,omitempty"`

	Citations []Citation `json:"citations,omitempty"`

	StageTrace []StageRecord `json:"stageTrace"`

	// TimedOut marks a partial result returned after the mode's overall
	// time budget elapsed.
	TimedOut bool `json:"timedOut,omitempty"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// NewState creates the initial state for a run.
func NewState(contentID, sourceURL string, mode Mode, features Features, language string) *State {
	return &State{
		RunID:     uuid.NewString(),
		ContentID: contentID,
		SourceURL: sourceURL,
		Mode:      mode,
		Features:  features,
		Language:  language,
		StartedAt: time.Now(),
	}
}

// AppendTrace appends one stage record.
func (s *State) AppendTrace(record StageRecord) {
	s.StageTrace = append(s.StageTrace, record)
}

// SkippedStages lists optional stages that failed or were skipped, for the
// partial-result label callers receive.
func (s *State) SkippedStages() []string {
	var skipped []string
	for _, r := range s.StageTrace {
		if r.Status == StageFailed || r.Status == StageSkipped {
			skipped = append(skipped, r.Stage)
		}
	}
	return skipped
}

// Clone returns a shallow copy with its own slices, safe to hand to a
// caller while the original keeps accumulating trace entries.
func (s *State) Clone() *State {
	out := *s
	out.Transcript = append([]transcript.Segment(nil), s.Transcript...)
	out.ResearchFindings = append([]ResearchFinding(nil), s.ResearchFindings...)
	out.FactChecks = append([]FactCheck(nil), s.FactChecks...)
	out.Citations = append([]Citation(nil), s.Citations...)
	out.StageTrace = append([]StageRecord(nil), s.StageTrace...)
	if s.Summary != nil {
		summary := *s.Summary
		out.Summary = &summary
	}
	if s.Credibility != nil {
		cred := *s.Credibility
		out.Credibility = &cred
	}
	return &out
}
