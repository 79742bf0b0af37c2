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

package llms

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/recapd/recapd/pkg/config"
)

// GeminiProvider generates through the Gemini API.
type GeminiProvider struct {
	cfg    *config.LLMProviderConfig
	client *genai.Client
}

// geminiOptions are the provider-specific knobs accepted in the config
// options map.
type geminiOptions struct {
	TopP float64 `mapstructure:"top_p"`
	TopK float64 `mapstructure:"top_k"`
}

// NewGeminiProvider creates a provider from configuration.
func NewGeminiProvider(ctx context.Context, cfg *config.LLMProviderConfig) (*GeminiProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm provider configuration is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an api_key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{cfg: cfg, client: client}, nil
}

var _ Provider = (*GeminiProvider)(nil)

func (p *GeminiProvider) ModelName() string {
	return p.cfg.Model
}

func (p *GeminiProvider) Close() error {
	return nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	genConfig := &genai.GenerateContentConfig{}

	temperature := p.cfg.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	genConfig.Temperature = genai.Ptr(float32(temperature))

	maxTokens := p.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(maxTokens)
	}

	if req.System != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	var opts geminiOptions
	if err := p.cfg.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if opts.TopP > 0 {
		genConfig.TopP = genai.Ptr(float32(opts.TopP))
	}
	if opts.TopK > 0 {
		genConfig.TopK = genai.Ptr(float32(opts.TopK))
	}

	result, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		perr := &ProviderError{Provider: "gemini", Message: err.Error(), Err: err}
		if strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "quota") {
			perr.Err = ErrRateLimited
		}
		return nil, perr
	}

	text := result.Text()
	if text == "" {
		return nil, &ProviderError{Provider: "gemini", Message: "response contained no text"}
	}

	resp := &Response{Text: text}
	if result.UsageMetadata != nil {
		resp.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}
