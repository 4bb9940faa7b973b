package stages

import (
	"errors"
	"fmt"
)

var (
	ErrMissingInput = errors.New("stage input missing")
	ErrEmptyOutput  = errors.New("generator returned no content")
)

// GenerationFailure wraps an error raised by a Generator.
type GenerationFailure struct {
	Stage string
	Cause error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Stage, e.Cause)
}

func (e *GenerationFailure) Unwrap() error {
	return e.Cause
}
