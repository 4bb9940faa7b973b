package workflow

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/artifacts"
)

// Decision is the caller's answer at the router.
type Decision string

const (
	Pending Decision = "pending"
	Proceed Decision = "proceed"
	Stop    Decision = "stop"
)

// ParseDecision accepts the canonical names along with the yes/no and
// "dont proceed" spellings used by form submissions.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return Pending, nil
	case "proceed", "yes", "y":
		return Proceed, nil
	case "stop", "no", "n", "dont proceed", "don't proceed":
		return Stop, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
}

// Status summarizes what a State needs next.
type Status string

const (
	// StatusRunning means at least one stage or the router can run.
	StatusRunning Status = "running"
	// StatusAwaiting means a decision or a stage parameter is missing.
	StatusAwaiting Status = "awaiting"
	// StatusHalted means nothing can run until a failed stage is retried.
	StatusHalted   Status = "halted"
	StatusTerminal Status = "terminal"
)

// State is one workflow instance. Advance never mutates the State it is
// given; it returns a new value.
type State struct {
	Scope     uuid.UUID                      `json:"scope"`
	Report    string                         `json:"-"`
	Artifacts map[StageID]artifacts.Artifact `json:"artifacts"`
	Decision  Decision                       `json:"decision"`
	Current   StageID                        `json:"current"`
	Route     string                         `json:"route,omitempty"`
	Params    map[string]string              `json:"params,omitempty"`
	Completed []StageID                      `json:"completed"`
	Failed    map[StageID]string             `json:"failed,omitempty"`
	Status    Status                         `json:"status"`
}

// NewState starts a workflow instance over report.
func NewState(scope uuid.UUID, report string) State {
	return State{
		Scope:     scope,
		Report:    report,
		Artifacts: make(map[StageID]artifacts.Artifact),
		Decision:  Pending,
		Params:    make(map[string]string),
		Status:    StatusRunning,
	}
}

func (s State) Awaiting() bool { return s.Status == StatusAwaiting }
func (s State) Terminal() bool { return s.Current == Terminal }
func (s State) Halted() bool   { return s.Status == StatusHalted }

// Artifact returns the artifact produced by stage, if any.
func (s State) Artifact(id StageID) (artifacts.Artifact, bool) {
	a, ok := s.Artifacts[id]
	return a, ok
}

func (s *State) done(id StageID) bool {
	_, ok := s.Artifacts[id]
	return ok
}

func (s *State) failed(id StageID) bool {
	_, ok := s.Failed[id]
	return ok
}

func (s State) clone() State {
	c := s
	c.Artifacts = maps.Clone(s.Artifacts)
	if c.Artifacts == nil {
		c.Artifacts = make(map[StageID]artifacts.Artifact)
	}
	c.Params = maps.Clone(s.Params)
	if c.Params == nil {
		c.Params = make(map[string]string)
	}
	c.Failed = maps.Clone(s.Failed)
	c.Completed = slices.Clone(s.Completed)
	if c.Decision == "" {
		c.Decision = Pending
	}
	return c
}

// Trigger carries caller input into Advance. The zero Trigger just
// continues the workflow.
type Trigger struct {
	Decision Decision          `json:"decision,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Retry    []StageID         `json:"retry,omitempty"`
}

func (s *State) apply(t Trigger) error {
	switch t.Decision {
	case "", Pending:
	case Proceed, Stop:
		if s.Decision != Pending && s.Decision != t.Decision {
			return fmt.Errorf("%w: %s", ErrDecisionLocked, s.Decision)
		}
		s.Decision = t.Decision
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, t.Decision)
	}

	for k, v := range t.Params {
		s.Params[k] = v
	}

	for _, id := range t.Retry {
		if !s.failed(id) {
			return fmt.Errorf("%w: %s", ErrNotRetryable, id)
		}
		delete(s.Failed, id)
	}
	return nil
}
