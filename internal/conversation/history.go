// Package conversation answers questions against an index and keeps an
// append-only, ordered history of turns per session.
package conversation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/index"
)

// Turn is one answered question. Turns are immutable once appended.
type Turn struct {
	Ordinal   int           `json:"ordinal"`
	UserText  string        `json:"user_text"`
	Context   []index.Entry `json:"context"`
	BotText   string        `json:"bot_text"`
	Degraded  bool          `json:"degraded"`
	CreatedAt time.Time     `json:"created_at"`
}

// History is the ordered turn log of one session. Turn i always has
// ordinal i+1. Readers only ever see fully answered turns.
type History struct {
	// write serializes appenders across ordinal assignment and persistence.
	// mu guards turns and is only held for the slice update.
	write sync.Mutex
	mu    sync.RWMutex
	scope uuid.UUID
	turns []Turn
}

func NewHistory(scope uuid.UUID) *History {
	return &History{scope: scope}
}

// Restore rebuilds a History from persisted turns, which must be
// contiguous from ordinal 1.
func Restore(scope uuid.UUID, turns []Turn) (*History, error) {
	for i, t := range turns {
		if t.Ordinal != i+1 {
			return nil, fmt.Errorf("%w: turn %d has ordinal %d", ErrCorruptHistory, i, t.Ordinal)
		}
	}
	return &History{scope: scope, turns: slices.Clone(turns)}, nil
}

func (h *History) Scope() uuid.UUID { return h.scope }

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Turns returns a copy of every turn in order.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.turns)
}

// Last returns up to n most recent turns in order.
func (h *History) Last(n int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := max(len(h.turns)-n, 0)
	return slices.Clone(h.turns[start:])
}

// append assigns the next ordinal and runs persist before the turn
// becomes visible. A persist error leaves the history unchanged.
func (h *History) append(t Turn, persist func(Turn) error) (Turn, error) {
	h.write.Lock()
	defer h.write.Unlock()

	t.Ordinal = h.Len() + 1
	if persist != nil {
		if err := persist(t); err != nil {
			return Turn{}, err
		}
	}

	h.mu.Lock()
	h.turns = append(h.turns, t)
	h.mu.Unlock()
	return t, nil
}

// Recorder persists turns. Record is called under the history's writer
// lock, so calls for one scope never overlap. Readers are not blocked
// while a Record is in flight.
type Recorder interface {
	Record(ctx context.Context, scope uuid.UUID, t Turn) error
	Load(ctx context.Context, scope uuid.UUID) ([]Turn, error)
	// Delete removes every turn recorded for scope.
	Delete(ctx context.Context, scope uuid.UUID) error
}
