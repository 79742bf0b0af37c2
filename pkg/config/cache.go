package config

import "fmt"

// CacheConfig controls the fingerprint result cache.
type CacheConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// TTLSeconds bounds entry lifetime regardless of access.
	TTLSeconds int `yaml:"ttl_seconds,omitempty" json:"ttl_seconds,omitempty"`

	// LeaseWaitSeconds bounds how long a duplicate request waits on an
	// in-flight computation before running independently.
	LeaseWaitSeconds int `yaml:"lease_wait_seconds,omitempty" json:"lease_wait_seconds,omitempty"`
}

func (c *CacheConfig) IsEnabled() bool {
	return c != nil && (c.Enabled == nil || *c.Enabled)
}

func (c *CacheConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 3600
	}
	if c.LeaseWaitSeconds == 0 {
		c.LeaseWaitSeconds = 120
	}
}

func (c *CacheConfig) Validate() error {
	if c.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds must not be negative")
	}
	if c.LeaseWaitSeconds < 0 {
		return fmt.Errorf("lease_wait_seconds must not be negative")
	}
	return nil
}
