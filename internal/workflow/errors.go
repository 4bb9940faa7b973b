package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrDecisionLocked  = errors.New("decision already made")
	ErrInvalidDecision = errors.New("invalid decision")
	ErrMissingReport   = errors.New("workflow has no report")
	ErrNotRetryable    = errors.New("stage has not failed")
)

// StageFailure reports a stage invocation that errored. The failed branch
// halts; sibling results from the same step are kept.
type StageFailure struct {
	Stage StageID
	Cause error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *StageFailure) Unwrap() error {
	return e.Cause
}

// ConfigurationFailure reports a malformed definition or a router label
// with no matching edge. It is never recovered by a default route.
type ConfigurationFailure struct {
	Stage  StageID
	Label  string
	Reason string
}

func (e *ConfigurationFailure) Error() string {
	switch {
	case e.Label != "":
		return fmt.Sprintf("configuration failure at %s: label %q: %s", e.Stage, e.Label, e.Reason)
	case e.Stage != "":
		return fmt.Sprintf("configuration failure at %s: %s", e.Stage, e.Reason)
	}
	return "configuration failure: " + e.Reason
}

func configErr(stage StageID, format string, args ...any) *ConfigurationFailure {
	return &ConfigurationFailure{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}
