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

// Package llms implements the generation provider collaborator. Providers
// are stateless; every call carries its full prompt.
package llms

import (
	"context"
	"errors"
	"fmt"
)

// Request is one generation call.
type Request struct {
	// System is the system instruction, optional.
	System string

	// Prompt is the user prompt.
	Prompt string

	// Temperature overrides the configured default when non-negative.
	Temperature float64

	// MaxTokens overrides the configured completion budget when positive.
	MaxTokens int
}

// Response is the generation result.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	ModelName() string
	Close() error
}

// ErrRateLimited signals the provider rejected the call for quota reasons.
var ErrRateLimited = errors.New("generation provider rate limited")

// ProviderError reports a generation failure with its upstream detail.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a provider quota rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
