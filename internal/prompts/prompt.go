// Package prompts manages named instruction overrides per generation
// stage. At most one override per stage is active; without one the
// built-in instructions apply.
package prompts

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prompt is a named instruction override for a stage.
type Prompt struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Stage        Stage     `json:"stage"`
	Instructions string    `json:"instructions"`
	Description  *string   `json:"description"`
	Active       bool      `json:"active"`
}

// CreateCommand carries the data needed to create a prompt override.
type CreateCommand struct {
	Name         string  `json:"name"`
	Stage        Stage   `json:"stage"`
	Instructions string  `json:"instructions"`
	Description  *string `json:"description"`
}

// UpdateCommand replaces the mutable fields of a prompt override.
type UpdateCommand CreateCommand

func (c CreateCommand) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Instructions) == "" {
		return fmt.Errorf("%w: instructions are required", ErrInvalid)
	}
	if _, err := ParseStage(string(c.Stage)); err != nil {
		return err
	}
	return nil
}
