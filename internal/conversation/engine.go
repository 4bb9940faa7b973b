package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/index"
)

// Question is everything an Answerer sees for one turn.
type Question struct {
	Scope      uuid.UUID
	UserText   string
	Context    []index.Entry
	PriorTurns []Turn
}

type Answerer interface {
	Answer(ctx context.Context, q Question) (string, error)
}

// AnswererFunc adapts a function to Answerer.
type AnswererFunc func(ctx context.Context, q Question) (string, error)

func (f AnswererFunc) Answer(ctx context.Context, q Question) (string, error) {
	return f(ctx, q)
}

// Observer receives turn outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveTurn(degraded bool)
}

// Runtime bundles the collaborators an Engine uses. Recorder and
// Observer are optional.
type Runtime struct {
	Index    index.Index
	Answerer Answerer
	Recorder Recorder
	Observer Observer
	Logger   *slog.Logger
	Config   Config
}

type Engine struct {
	index    index.Index
	answerer Answerer
	recorder Recorder
	observer Observer
	logger   *slog.Logger
	topK     int
	window   int
	now      func() time.Time
}

func New(rt Runtime) *Engine {
	logger := rt.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := rt.Config
	cfg.loadDefaults()

	return &Engine{
		index:    rt.Index,
		answerer: rt.Answerer,
		recorder: rt.Recorder,
		observer: rt.Observer,
		logger:   logger.With("system", "conversation"),
		topK:     cfg.TopK,
		window:   cfg.HistoryWindow(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Load restores the persisted history for scope, or starts an empty one
// when no Recorder is configured.
func (e *Engine) Load(ctx context.Context, scope uuid.UUID) (*History, error) {
	if e.recorder == nil {
		return NewHistory(scope), nil
	}
	turns, err := e.recorder.Load(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return Restore(scope, turns)
}

// Forget deletes the recorded turns for scope. It is a no-op without a
// Recorder.
func (e *Engine) Forget(ctx context.Context, scope uuid.UUID) error {
	if e.recorder == nil {
		return nil
	}
	if err := e.recorder.Delete(ctx, scope); err != nil {
		return fmt.Errorf("forget history: %w", err)
	}
	return nil
}

// Ask retrieves context for text, answers it and appends the turn to h.
//
// An *index.IndexFailure does not fail the turn: it is answered with no
// context and marked Degraded. An answering error appends nothing.
func (e *Engine) Ask(ctx context.Context, h *History, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuestion
	}

	entries, degraded, err := e.retrieve(ctx, h.Scope(), text)
	if err != nil {
		return nil, err
	}

	prior := h.Last(e.window)

	answer, err := e.answerer.Answer(ctx, Question{
		Scope:      h.Scope(),
		UserText:   text,
		Context:    entries,
		PriorTurns: prior,
	})
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}

	turn := Turn{
		UserText:  text,
		Context:   entries,
		BotText:   answer,
		Degraded:  degraded,
		CreatedAt: e.now(),
	}

	var persist func(Turn) error
	if e.recorder != nil {
		persist = func(t Turn) error {
			return e.recorder.Record(ctx, h.Scope(), t)
		}
	}

	turn, err = h.append(turn, persist)
	if err != nil {
		return nil, fmt.Errorf("record turn: %w", err)
	}

	if e.observer != nil {
		e.observer.ObserveTurn(degraded)
	}
	e.logger.Info("turn appended",
		"scope", h.Scope(),
		"ordinal", turn.Ordinal,
		"context", len(entries),
		"degraded", degraded,
	)
	return &turn, nil
}

func (e *Engine) retrieve(ctx context.Context, scope uuid.UUID, text string) ([]index.Entry, bool, error) {
	if e.index == nil {
		return []index.Entry{}, true, nil
	}

	entries, err := e.index.Query(ctx, scope, text, e.topK)
	if err == nil {
		return entries, false, nil
	}

	var failure *index.IndexFailure
	if !errors.As(err, &failure) {
		return nil, false, fmt.Errorf("retrieve context: %w", err)
	}

	e.logger.Warn("retrieval degraded", "scope", scope, "error", err)
	return []index.Entry{}, true, nil
}
