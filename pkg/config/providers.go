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

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ProvidersConfig groups all external collaborator settings.
type ProvidersConfig struct {
	LLM        LLMProviderConfig      `yaml:"llm,omitempty" json:"llm,omitempty"`
	Embedder   EmbedderConfig         `yaml:"embedder,omitempty" json:"embedder,omitempty"`
	Search     SearchProviderConfig   `yaml:"search,omitempty" json:"search,omitempty"`
	Transcript TranscriptSourceConfig `yaml:"transcript,omitempty" json:"transcript,omitempty"`
}

func (c *ProvidersConfig) SetDefaults() {
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Search.SetDefaults()
	c.Transcript.SetDefaults()
}

func (c *ProvidersConfig) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Transcript.Validate(); err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	return nil
}

// LLMProviderConfig configures the generation provider.
type LLMProviderConfig struct {
	// Type is "openai" (any OpenAI-compatible endpoint) or "gemini".
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Timeout is the per-call timeout in seconds.
	Timeout    int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryDelay int `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`

	// Options carries provider-specific knobs decoded by each provider.
	Options map[string]interface{} `yaml:"options,omitempty" json:"options,omitempty"`
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		switch c.Type {
		case "gemini":
			c.Model = "gemini-2.0-flash"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.BaseURL == "" && c.Type == "openai" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
	c.Options = ExpandEnvMap(c.Options)
}

func (c *LLMProviderConfig) Validate() error {
	if c.Type != "openai" && c.Type != "gemini" {
		return fmt.Errorf("invalid type '%s', must be 'openai' or 'gemini'", c.Type)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %f", c.Temperature)
	}
	return nil
}

// DecodeOptions decodes the generic options map into a provider-specific
// struct using mapstructure tags.
func (c *LLMProviderConfig) DecodeOptions(target interface{}) error {
	if c.Options == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build options decoder: %w", err)
	}
	if err := decoder.Decode(c.Options); err != nil {
		return fmt.Errorf("failed to decode provider options: %w", err)
	}
	return nil
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Type is "openai" for any OpenAI-compatible embeddings endpoint.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Dimension is the embedding vector length.
	Dimension int `yaml:"dimension,omitempty" json:"dimension,omitempty"`

	// BatchSize caps texts per embedding request.
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`

	Timeout    int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.Type != "openai" {
		return fmt.Errorf("invalid type '%s', only 'openai' compatible embedders are supported", c.Type)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// SearchProviderConfig configures the web search collaborator.
type SearchProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// MaxResults caps results per query.
	MaxResults int `yaml:"max_results,omitempty" json:"max_results,omitempty"`

	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (c *SearchProviderConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.tavily.com"
	}
	if c.MaxResults == 0 {
		c.MaxResults = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

func (c *SearchProviderConfig) Validate() error {
	if c.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive, got %d", c.MaxResults)
	}
	return nil
}

// TranscriptSourceConfig configures the transcript fetch collaborator.
type TranscriptSourceConfig struct {
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// DefaultLanguage is requested when the caller does not specify one.
	DefaultLanguage string `yaml:"default_language,omitempty" json:"default_language,omitempty"`

	Timeout    int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

func (c *TranscriptSourceConfig) SetDefaults() {
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "en"
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

func (c *TranscriptSourceConfig) Validate() error {
	return nil
}
