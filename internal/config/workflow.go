package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kavlartius217/meditrust/internal/workflow"
)

const (
	EnvWorkflowDefinition  = "MEDITRUST_WORKFLOW_DEFINITION"
	EnvWorkflowMaxParallel = "MEDITRUST_WORKFLOW_MAX_PARALLEL"
)

// WorkflowConfig selects the stage graph and bounds sibling concurrency.
// An empty Definition uses the built-in medical report workflow.
type WorkflowConfig struct {
	Definition  string `toml:"definition"`
	MaxParallel int    `toml:"max_parallel"`
}

// Finalize applies environment overrides and validation.
func (c *WorkflowConfig) Finalize() error {
	if v := os.Getenv(EnvWorkflowDefinition); v != "" {
		c.Definition = v
	}
	if v := os.Getenv(EnvWorkflowMaxParallel); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxParallel = n
		}
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel cannot be negative: %d", c.MaxParallel)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *WorkflowConfig) Merge(overlay *WorkflowConfig) {
	if overlay.Definition != "" {
		c.Definition = overlay.Definition
	}
	if overlay.MaxParallel != 0 {
		c.MaxParallel = overlay.MaxParallel
	}
}

// Load returns the configured definition.
func (c *WorkflowConfig) Load() (*workflow.Definition, error) {
	if c.Definition == "" {
		return workflow.Default(), nil
	}
	return workflow.LoadDefinition(c.Definition)
}
