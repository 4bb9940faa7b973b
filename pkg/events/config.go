package events

import (
	"fmt"
	"os"
	"strconv"
)

// Config selects the event transport. Events are dropped when disabled.
type Config struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Prefix  string `toml:"prefix"`
}

// Env names the environment variables that override Config fields.
type Env struct {
	Enabled string
	URL     string
	Prefix  string
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	if c.URL == "" {
		c.URL = "nats://localhost:4222"
	}
	if c.Prefix == "" {
		c.Prefix = "meditrust"
	}
	if env != nil {
		if v := os.Getenv(env.Enabled); env.Enabled != "" && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Enabled = b
			}
		}
		if v := os.Getenv(env.URL); env.URL != "" && v != "" {
			c.URL = v
		}
		if v := os.Getenv(env.Prefix); env.Prefix != "" && v != "" {
			c.Prefix = v
		}
	}
	if c.Enabled && c.URL == "" {
		return fmt.Errorf("url required when events are enabled")
	}
	return nil
}

// Merge overwrites fields set in overlay. Enabled always applies.
func (c *Config) Merge(overlay *Config) {
	c.Enabled = overlay.Enabled
	if overlay.URL != "" {
		c.URL = overlay.URL
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
}
