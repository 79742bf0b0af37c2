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

// Package config defines the YAML configuration surface. Every section owns
// its defaults and validation so components can be constructed from a
// section in isolation (tests do exactly that).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging,omitempty" json:"logging,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty" json:"server,omitempty"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty" json:"cache,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty" json:"retrieval,omitempty"`
	QA        QAConfig        `yaml:"qa,omitempty" json:"qa,omitempty"`
	Providers ProvidersConfig `yaml:"providers,omitempty" json:"providers,omitempty"`
	Database  DatabaseConfig  `yaml:"database,omitempty" json:"database,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// SetDefaults applies defaults across all sections.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Server.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Cache.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Retrieval.SetDefaults()
	c.QA.SetDefaults()
	c.Providers.SetDefaults()
	c.Database.SetDefaults()
	c.Tracing.SetDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"logging", c.Logging.Validate},
		{"server", c.Server.Validate},
		{"pipeline", c.Pipeline.Validate},
		{"cache", c.Cache.Validate},
		{"rate_limit", c.RateLimit.Validate},
		{"retrieval", c.Retrieval.Validate},
		{"qa", c.QA.Validate},
		{"providers", c.Providers.Validate},
		{"database", c.Database.Validate},
		{"tracing", c.Tracing.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
	}
	return nil
}

// Load reads, expands, defaults and validates a configuration file.
// A missing path yields a fully defaulted configuration. A .env file next
// to the working directory is loaded first so ${VAR} references resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		expanded := ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is one of simple, verbose, json.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// File redirects log output to a file path when set.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid level '%s', must be debug, info, warn, or error", c.Level)
	}
	switch c.Format {
	case "simple", "verbose", "json":
	default:
		return fmt.Errorf("invalid format '%s', must be simple, verbose, or json", c.Format)
	}
	return nil
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Exporter is "stdout" or "none".
	Exporter string `yaml:"exporter,omitempty" json:"exporter,omitempty"`
}

func (c *TracingConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

func (c *TracingConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(false)
	}
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
}

func (c *TracingConfig) Validate() error {
	if c.Exporter != "stdout" && c.Exporter != "none" {
		return fmt.Errorf("invalid exporter '%s', must be 'stdout' or 'none'", c.Exporter)
	}
	return nil
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}
