package conversation

import (
	"fmt"
	"os"
	"strconv"
)

// DefaultWindow applies when history_window is unset. An explicit 0 sends
// no prior turns to the answerer.
const DefaultWindow = 6

// Config bounds how much context each turn carries.
type Config struct {
	TopK   int  `toml:"top_k"`
	Window *int `toml:"history_window"`
}

// HistoryWindow returns the number of prior turns passed to the answerer.
func (c *Config) HistoryWindow() int {
	if c.Window == nil {
		return DefaultWindow
	}
	return *c.Window
}

// Env names the environment variables that override Config fields.
type Env struct {
	TopK   string
	Window string
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites fields set in overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.TopK != 0 {
		c.TopK = overlay.TopK
	}
	if overlay.Window != nil {
		window := *overlay.Window
		c.Window = &window
	}
}

func (c *Config) loadDefaults() {
	if c.TopK == 0 {
		c.TopK = 4
	}
	if c.Window == nil {
		window := DefaultWindow
		c.Window = &window
	}
}

func (c *Config) loadEnv(env *Env) {
	if v, ok := lookupInt(env.TopK); ok {
		c.TopK = v
	}
	if v, ok := lookupInt(env.Window); ok {
		c.Window = &v
	}
}

func lookupInt(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	v, err := strconv.Atoi(os.Getenv(name))
	return v, err == nil
}

func (c *Config) validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive: %d", c.TopK)
	}
	if w := c.HistoryWindow(); w < 0 {
		return fmt.Errorf("history_window cannot be negative: %d", w)
	}
	return nil
}
