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

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/recapd/recapd/pkg/pipeline"
	"github.com/recapd/recapd/pkg/qa"
	"github.com/recapd/recapd/pkg/ratelimit"
)

type errorResponse struct {
	Error string `json:"error"`
}

// summaryResponse is the wire shape for a completed or partial run.
type summaryResponse struct {
	*pipeline.State
	Timeout       bool     `json:"timeout,omitempty"`
	SkippedStages []string `json:"skippedStages,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	client := clientID(r)
	state, err := s.service.Summarize(r.Context(), req, client, func(e pipeline.Event) {
		s.hub.Publish(req.ContentID, e)
	})

	switch {
	case err == nil:
		s.observeRun(state.Mode, "completed")
		writeJSON(w, http.StatusOK, summaryResponse{State: state})

	case pipeline.IsInputError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case ratelimit.IsRateLimitError(err):
		s.writeRateLimited(w, err)

	case pipeline.IsTimeoutError(err):
		// The budget elapsing is not a failure; the caller gets whatever
		// the completed stages produced.
		s.observeRun(state.Mode, "timeout")
		writeJSON(w, http.StatusOK, summaryResponse{
			State:         state,
			Timeout:       true,
			SkippedStages: state.SkippedStages(),
		})

	case pipeline.IsUpstreamError(err):
		s.observeRunMaybe(state, "failed")
		s.logger.Error("summarization failed", "contentID", req.ContentID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})

	default:
		s.observeRunMaybe(state, "failed")
		s.logger.Error("summarization failed", "contentID", req.ContentID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

type askRequest struct {
	ContentID string    `json:"contentId"`
	Question  string    `json:"question"`
	History   []qa.Turn `json:"history,omitempty"`
}

type askResponse struct {
	Answer     string              `json:"answer"`
	Confidence string              `json:"confidence"`
	Citations  []pipeline.Citation `json:"citations,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.qa == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "question answering is not configured"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.ContentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "contentId must not be empty"})
		return
	}

	client := clientID(r)
	if s.limiter != nil {
		if _, err := s.limiter.CheckAndRecord(r.Context(), client); err != nil {
			switch {
			case ratelimit.IsRateLimitError(err):
				s.writeRateLimited(w, err)
			case errors.Is(err, ratelimit.ErrInvalidClientID):
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			default:
				// Limiter store trouble is a server fault, not a denial.
				s.logger.Error("rate limit check failed", "client", client, "error", err)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
			return
		}
	}

	history := req.History
	if len(history) == 0 && s.turns != nil {
		stored, err := s.turns.History(r.Context(), req.ContentID, client, 20)
		if err != nil {
			s.logger.Warn("failed to load conversation history", "error", err)
		} else {
			history = stored
		}
	}

	answer, err := s.qa.Ask(r.Context(), req.ContentID, req.Question, history)
	switch {
	case err == nil:
	case pipeline.IsInputError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	default:
		s.logger.Error("question answering failed", "contentID", req.ContentID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	if s.metrics != nil {
		s.metrics.Questions.WithLabelValues(answer.Confidence).Inc()
	}
	s.saveTurns(r, req, answer, client)

	writeJSON(w, http.StatusOK, askResponse{
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		Citations:  answer.Citations,
	})
}

func (s *Server) saveTurns(r *http.Request, req askRequest, answer *qa.Answer, client string) {
	if s.turns == nil {
		return
	}
	ctx := r.Context()
	if err := s.turns.SaveTurn(ctx, uuid.NewString(), req.ContentID, client, qa.RoleUser, req.Question); err != nil {
		s.logger.Warn("failed to save question turn", "error", err)
		return
	}
	if err := s.turns.SaveTurn(ctx, uuid.NewString(), req.ContentID, client, qa.RoleAssistant, answer.Text); err != nil {
		s.logger.Warn("failed to save answer turn", "error", err)
	}
}

// writeRateLimited answers a quota denial with 429 and a Retry-After hint.
func (s *Server) writeRateLimited(w http.ResponseWriter, err error) {
	if s.metrics != nil {
		s.metrics.RateLimited.Inc()
	}
	if result := ratelimit.GetRateLimitResult(err); result != nil {
		seconds := int(result.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
}

func (s *Server) observeRun(mode pipeline.Mode, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRun(mode, outcome)
	}
}

func (s *Server) observeRunMaybe(state *pipeline.State, outcome string) {
	if state != nil {
		s.observeRun(state.Mode, outcome)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already on the wire; an encode failure here only means
	// the client went away.
	_ = json.NewEncoder(w).Encode(body)
}
