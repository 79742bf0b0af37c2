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

package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/recapd/recapd/pkg/config"
	"github.com/recapd/recapd/pkg/httpclient"
)

// HTTPSource fetches transcripts from a captions API.
type HTTPSource struct {
	cfg        *config.TranscriptSourceConfig
	httpClient *httpclient.Client
}

type transcriptResponse struct {
	ContentID string    `json:"content_id"`
	Language  string    `json:"language"`
	Segments  []Segment `json:"segments"`
}

type transcriptErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewHTTPSource creates a transcript source from configuration.
func NewHTTPSource(cfg *config.TranscriptSourceConfig) (*HTTPSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("transcript source configuration is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcript source base_url is required")
	}

	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseRetryAfter),
	)

	return &HTTPSource{cfg: cfg, httpClient: client}, nil
}

var _ Source = (*HTTPSource)(nil)

func (s *HTTPSource) Fetch(ctx context.Context, contentID, language string) ([]Segment, error) {
	if contentID == "" {
		return nil, fmt.Errorf("content ID is required")
	}
	if language == "" {
		language = s.cfg.DefaultLanguage
	}

	endpoint := fmt.Sprintf("%s/transcripts/%s?lang=%s",
		s.cfg.BaseURL, url.PathEscape(contentID), url.QueryEscape(language))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, s.decodeError(resp, contentID, language)
		}
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript response: %w", err)
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse transcript response: %w", err)
	}
	if len(parsed.Segments) == 0 {
		return nil, &NoTranscriptError{ContentID: contentID}
	}

	return parsed.Segments, nil
}

func (s *HTTPSource) decodeError(resp *http.Response, contentID, language string) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &NoTranscriptError{ContentID: contentID}
	case http.StatusUnprocessableEntity:
		return &UnsupportedLanguageError{ContentID: contentID, Language: language}
	}

	var parsed transcriptErrorResponse
	if body, err := io.ReadAll(resp.Body); err == nil {
		if json.Unmarshal(body, &parsed) == nil {
			switch parsed.Error.Code {
			case "transcript_not_found", "captions_disabled":
				return &NoTranscriptError{ContentID: contentID}
			case "language_unavailable":
				return &UnsupportedLanguageError{ContentID: contentID, Language: language}
			}
			if parsed.Error.Message != "" {
				return fmt.Errorf("transcript source error (HTTP %d): %s", resp.StatusCode, parsed.Error.Message)
			}
		}
	}
	return fmt.Errorf("transcript source error: HTTP %d", resp.StatusCode)
}
