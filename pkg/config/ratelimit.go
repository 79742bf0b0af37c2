package config

import "fmt"

// RateLimitConfig defines request rate limiting per client identity.
type RateLimitConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Requests is the maximum number of requests per window.
	Requests int64 `yaml:"requests,omitempty" json:"requests,omitempty"`

	// WindowSeconds is the window length.
	WindowSeconds int `yaml:"window_seconds,omitempty" json:"window_seconds,omitempty"`
}

func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.Requests == 0 {
		c.Requests = 100
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 3600
	}
}

func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.Requests <= 0 {
		return fmt.Errorf("requests must be positive, got %d", c.Requests)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %d", c.WindowSeconds)
	}
	return nil
}
