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

package config

import "fmt"

// PipelineConfig controls orchestration behavior.
type PipelineConfig struct {
	// ModeTimeouts maps a mode name to its overall time budget in seconds.
	ModeTimeouts map[string]int `yaml:"mode_timeouts,omitempty" json:"mode_timeouts,omitempty"`

	// MaxTranscriptTokens bounds how much transcript text reaches the
	// summarization prompt. Counted with the model's tokenizer.
	MaxTranscriptTokens int `yaml:"max_transcript_tokens,omitempty" json:"max_transcript_tokens,omitempty"`

	// MaxClaims caps how many claims the fact-check stage extracts.
	MaxClaims int `yaml:"max_claims,omitempty" json:"max_claims,omitempty"`

	// MaxSearchQueries caps search calls per research stage run.
	MaxSearchQueries int `yaml:"max_search_queries,omitempty" json:"max_search_queries,omitempty"`

	// InlineCitations enables inline [n] markers in the summary text.
	InlineCitations *bool `yaml:"inline_citations,omitempty" json:"inline_citations,omitempty"`
}

const (
	ModeQuick       = "quick"
	ModeStandard    = "standard"
	ModeResearch    = "research"
	ModeEducational = "educational"
)

func defaultModeTimeouts() map[string]int {
	return map[string]int{
		ModeQuick:       30,
		ModeStandard:    60,
		ModeResearch:    180,
		ModeEducational: 120,
	}
}

func (c *PipelineConfig) SetDefaults() {
	if c.ModeTimeouts == nil {
		c.ModeTimeouts = defaultModeTimeouts()
	} else {
		for mode, seconds := range defaultModeTimeouts() {
			if _, ok := c.ModeTimeouts[mode]; !ok {
				c.ModeTimeouts[mode] = seconds
			}
		}
	}
	if c.MaxTranscriptTokens == 0 {
		c.MaxTranscriptTokens = 6000
	}
	if c.MaxClaims == 0 {
		c.MaxClaims = 10
	}
	if c.MaxSearchQueries == 0 {
		c.MaxSearchQueries = 3
	}
	if c.InlineCitations == nil {
		c.InlineCitations = BoolPtr(true)
	}
}

func (c *PipelineConfig) Validate() error {
	for mode, seconds := range c.ModeTimeouts {
		switch mode {
		case ModeQuick, ModeStandard, ModeResearch, ModeEducational:
		default:
			return fmt.Errorf("unknown mode '%s' in mode_timeouts", mode)
		}
		if seconds <= 0 {
			return fmt.Errorf("mode_timeouts.%s must be positive, got %d", mode, seconds)
		}
	}
	if c.MaxTranscriptTokens < 0 {
		return fmt.Errorf("max_transcript_tokens must not be negative")
	}
	if c.MaxClaims < 0 {
		return fmt.Errorf("max_claims must not be negative")
	}
	return nil
}
