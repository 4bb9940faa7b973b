// Package sessions owns the per-user analysis session: the workflow state,
// the conversation history, and the phase machine
// Upload → Analysis → {Doctor|Chat} → Chat that gates them.
package sessions

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/workflow"
)

type Phase string

const (
	PhaseUpload   Phase = "upload"
	PhaseAnalysis Phase = "analysis"
	PhaseDoctor   Phase = "doctor"
	PhaseChat     Phase = "chat"
)

// Session is the caller-owned value behind one analysis. Values returned
// by a System are snapshots; History is shared and safe for concurrent use.
type Session struct {
	ID        uuid.UUID      `json:"id"`
	Phase     Phase          `json:"phase"`
	Document  *uuid.UUID     `json:"document_id,omitempty"`
	State     workflow.State `json:"state"`
	Ingested  []string       `json:"ingested,omitempty"`
	Aborted   string         `json:"aborted,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	History *conversation.History `json:"-"`
}

// CreateCommand starts a session from report text already loaded by the caller.
type CreateCommand struct {
	Report   string
	Document *uuid.UUID
}

// finalKeys lists the artifact versions currently held by the workflow state.
func (s *Session) finalKeys() []string {
	keys := make([]string, 0, len(s.State.Artifacts))
	for _, a := range s.State.Artifacts {
		keys = append(keys, a.Key())
	}
	slices.Sort(keys)
	return keys
}

// chatReady reports whether the workflow finished and its final artifact
// set has been ingested.
func (s *Session) chatReady() bool {
	if !s.State.Terminal() {
		return false
	}
	for _, k := range s.finalKeys() {
		if !slices.Contains(s.Ingested, k) {
			return false
		}
	}
	return true
}

// machine holds the transition guards of the phase machine.
type machine struct {
	upstream []workflow.StageID
}

// analyzed reports whether every stage feeding the router has an artifact.
func (m machine) analyzed(s *Session) bool {
	for _, id := range m.upstream {
		if _, ok := s.State.Artifact(id); !ok {
			return false
		}
	}
	return true
}

// step returns the phase s may move to next, or s.Phase when no guard passes.
func (m machine) step(s *Session) Phase {
	switch s.Phase {
	case PhaseUpload:
		if m.analyzed(s) {
			return PhaseAnalysis
		}
	case PhaseAnalysis:
		switch s.State.Decision {
		case workflow.Proceed:
			return PhaseDoctor
		case workflow.Stop:
			if s.chatReady() {
				return PhaseChat
			}
		}
	case PhaseDoctor:
		if s.chatReady() {
			return PhaseChat
		}
	}
	return s.Phase
}

// settle applies every transition whose guard holds.
func (m machine) settle(s *Session) {
	for {
		next := m.step(s)
		if next == s.Phase {
			return
		}
		s.Phase = next
	}
}
