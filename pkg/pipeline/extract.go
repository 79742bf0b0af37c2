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
	"time"

	"github.com/recapd/recapd/pkg/transcript"
)

// Indexer ingests a transcript into the retrieval index. Satisfied by
// *retrieval.Index.
type Indexer interface {
	IndexTranscript(ctx context.Context, contentID string, segments []transcript.Segment) (int, error)
}

// ExtractStage fetches the transcript and kicks off retrieval indexing.
// Indexing runs in the background and is best effort: a failure there
// degrades question answering later but never fails the summarization run.
type ExtractStage struct {
	source transcript.Source
	index  Indexer
	logger *slog.Logger

	// indexTimeout bounds the detached indexing job.
	indexTimeout time.Duration
}

// NewExtractStage creates the extract stage. index may be nil when
// retrieval is disabled.
func NewExtractStage(source transcript.Source, index Indexer, log *slog.Logger) *ExtractStage {
	return &ExtractStage{
		source:       source,
		index:        index,
		logger:       log,
		indexTimeout: 2 * time.Minute,
	}
}

func (s *ExtractStage) Name() string   { return StageExtract }
func (s *ExtractStage) Optional() bool { return false }

func (s *ExtractStage) Run(ctx context.Context, state *State) error {
	segments, err := s.source.Fetch(ctx, state.ContentID, state.Language)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return &transcript.NoTranscriptError{ContentID: state.ContentID}
	}
	state.Transcript = segments

	if s.index != nil {
		// Detach from the run context so a pipeline timeout does not
		// abort indexing already in flight. The stage instance is shared
		// across concurrent runs, so the job carries no per-run state on
		// the stage itself.
		contentID := state.ContentID
		go func() {
			ictx, cancel := context.WithTimeout(context.Background(), s.indexTimeout)
			defer cancel()
			if _, err := s.index.IndexTranscript(ictx, contentID, segments); err != nil {
				s.logger.Warn("background transcript indexing failed",
					"contentID", contentID, "error", err)
			}
		}()
	}

	s.logger.Debug("transcript extracted",
		"contentID", state.ContentID, "segments", len(segments))
	return nil
}
