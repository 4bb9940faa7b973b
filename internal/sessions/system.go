package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/documents"
	"github.com/kavlartius217/meditrust/internal/index"
	"github.com/kavlartius217/meditrust/internal/workflow"
	"github.com/kavlartius217/meditrust/pkg/events"
)

// Event types published on session transitions.
const (
	EventCreated   = "session.created"
	EventAdvanced  = "session.advanced"
	EventIngested  = "session.ingested"
	EventTurn      = "session.turn"
	EventReset     = "session.reset"
	EventAborted   = "session.aborted"
	EventChatReady = "session.chat_ready"
)

// System is the presentation boundary: Advance, IngestAll and Ask are the
// only operations that move a session forward.
type System interface {
	Handler(maxUploadSize int64) *Handler

	Create(ctx context.Context, cmd CreateCommand) (*Session, error)
	// Upload decodes a report, stores it and creates a session for it.
	// A *documents.SourceLoadFailure is returned before anything is stored.
	Upload(ctx context.Context, up documents.Upload) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Advance applies t and runs the workflow until it awaits input, halts
	// or terminates. A terminal workflow is ingested before returning.
	Advance(ctx context.Context, id uuid.UUID, t workflow.Trigger) (*Session, error)
	IngestAll(ctx context.Context, id uuid.UUID) (*Session, error)
	Ask(ctx context.Context, id uuid.UUID, text string) (*conversation.Turn, error)
	Turns(ctx context.Context, id uuid.UUID) ([]conversation.Turn, error)

	// Reset discards the session, its index entries and its recorded
	// turns. Artifacts and the uploaded report remain in their stores.
	Reset(ctx context.Context, id uuid.UUID) error
}

// Runtime bundles the collaborators a System drives.
type Runtime struct {
	Workflow     *workflow.Engine
	Conversation *conversation.Engine
	Index        index.Index
	Documents    documents.System
	Store        Store
	Events       events.Publisher
	Logger       *slog.Logger
}

type entry struct {
	// run is held for the duration of a transition; TryLock failing
	// means the session is busy.
	run sync.Mutex

	mu  sync.RWMutex
	cur Session
}

func (e *entry) snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.cur
	s.Ingested = slices.Clone(s.Ingested)
	return s
}

func (e *entry) commit(s Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur = s
}

type system struct {
	workflow     *workflow.Engine
	conversation *conversation.Engine
	index        index.Index
	documents    documents.System
	store        Store
	events       events.Publisher
	logger       *slog.Logger
	machine      machine
	now          func() time.Time

	mu   sync.Mutex
	live map[uuid.UUID]*entry
}

// New builds a System. Store defaults to an in-memory store.
func New(rt Runtime) (System, error) {
	if rt.Workflow == nil {
		return nil, errors.New("sessions: workflow engine is required")
	}
	if rt.Conversation == nil {
		return nil, errors.New("sessions: conversation engine is required")
	}
	if rt.Index == nil {
		return nil, errors.New("sessions: index is required")
	}

	s := &system{
		workflow:     rt.Workflow,
		conversation: rt.Conversation,
		index:        rt.Index,
		documents:    rt.Documents,
		store:        rt.Store,
		events:       rt.Events,
		logger:       rt.Logger,
		machine:      machine{upstream: rt.Workflow.Definition().Upstream()},
		now:          func() time.Time { return time.Now().UTC() },
		live:         make(map[uuid.UUID]*entry),
	}
	if s.store == nil {
		s.store = NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("system", "sessions")
	return s, nil
}

func (s *system) Handler(maxUploadSize int64) *Handler {
	return NewHandler(s, s.logger, maxUploadSize)
}

func (s *system) Create(ctx context.Context, cmd CreateCommand) (*Session, error) {
	return s.create(ctx, uuid.New(), cmd)
}

func (s *system) Upload(ctx context.Context, up documents.Upload) (*Session, error) {
	if s.documents == nil {
		return nil, errors.New("sessions: no document store configured")
	}

	parsed, err := documents.Parse(up.Filename, up.ContentType, up.Data)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	doc, err := s.documents.Create(ctx, documents.CreateCommand{
		Scope:       id,
		Data:        up.Data,
		Filename:    up.Filename,
		ContentType: parsed.ContentType,
		PageCount:   parsed.PageCount,
	})
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	return s.create(ctx, id, CreateCommand{Report: parsed.Text, Document: &doc.ID})
}

func (s *system) create(ctx context.Context, id uuid.UUID, cmd CreateCommand) (*Session, error) {
	if strings.TrimSpace(cmd.Report) == "" {
		return nil, workflow.ErrMissingReport
	}

	now := s.now()
	sess := Session{
		ID:        id,
		Phase:     PhaseUpload,
		Document:  cmd.Document,
		State:     workflow.NewState(id, cmd.Report),
		CreatedAt: now,
		UpdatedAt: now,
		History:   conversation.NewHistory(id),
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.live[id] = &entry{cur: sess}
	s.mu.Unlock()

	s.publish(ctx, EventCreated, sess, nil)
	s.logger.Info("session created", "id", id, "report_bytes", len(cmd.Report))
	return &sess, nil
}

func (s *system) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := e.snapshot()
	return &sess, nil
}

func (s *system) Advance(ctx context.Context, id uuid.UUID, t workflow.Trigger) (*Session, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.run.TryLock() {
		return nil, ErrSessionBusy
	}
	defer e.run.Unlock()

	sess := e.snapshot()

	switch {
	case sess.Aborted != "":
		return nil, fmt.Errorf("%w: %s", ErrAborted, sess.Aborted)
	case sess.Phase == PhaseChat:
		return nil, fmt.Errorf("%w: workflow already complete", ErrInvalidPhase)
	case sess.Phase == PhaseUpload && t.Decision != "" && t.Decision != workflow.Pending:
		return nil, fmt.Errorf("%w: decision before analysis", ErrInvalidPhase)
	}

	next, runErr := s.workflow.Run(ctx, sess.State, t)
	sess.State = next

	var cfg *workflow.ConfigurationFailure
	if errors.As(runErr, &cfg) {
		sess.Aborted = cfg.Error()
	}

	if runErr == nil && next.Terminal() && !sess.chatReady() {
		runErr = s.ingest(ctx, &sess)
	}

	s.machine.settle(&sess)
	sess.UpdatedAt = s.now()

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, errors.Join(runErr, err)
	}
	e.commit(sess)

	s.publish(ctx, EventAdvanced, sess, map[string]any{
		"status":    next.Status,
		"current":   next.Current,
		"completed": next.Completed,
	})
	if sess.Aborted != "" {
		s.publish(ctx, EventAborted, sess, map[string]any{"reason": sess.Aborted})
	}
	if sess.Phase == PhaseChat {
		s.publish(ctx, EventChatReady, sess, nil)
	}

	s.logger.Info("session advanced",
		"id", id,
		"phase", sess.Phase,
		"status", next.Status,
		"current", next.Current,
		"error", runErr,
	)
	return &sess, runErr
}

func (s *system) IngestAll(ctx context.Context, id uuid.UUID) (*Session, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.run.TryLock() {
		return nil, ErrSessionBusy
	}
	defer e.run.Unlock()

	sess := e.snapshot()
	if !sess.State.Terminal() {
		return nil, ErrNotReady
	}

	if err := s.ingest(ctx, &sess); err != nil {
		return nil, err
	}

	s.machine.settle(&sess)
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	e.commit(sess)

	if sess.Phase == PhaseChat {
		s.publish(ctx, EventChatReady, sess, nil)
	}
	return &sess, nil
}

// ingest hands the final artifact set to the index in definition order,
// so ingestion sequence and therefore tie ranking is reproducible.
// Ingested is only updated when every artifact succeeded.
func (s *system) ingest(ctx context.Context, sess *Session) error {
	for _, st := range s.workflow.Definition().Stages() {
		a, ok := sess.State.Artifact(st.ID)
		if !ok {
			continue
		}
		if err := s.index.Ingest(ctx, a); err != nil {
			return fmt.Errorf("ingest %s: %w", a.Key(), err)
		}
	}

	sess.Ingested = sess.finalKeys()
	s.publish(ctx, EventIngested, *sess, map[string]any{"artifacts": sess.Ingested})
	return nil
}

func (s *system) Ask(ctx context.Context, id uuid.UUID, text string) (*conversation.Turn, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	sess := e.snapshot()
	if sess.Phase != PhaseChat {
		return nil, fmt.Errorf("%w: chat requires an analyzed and indexed report", ErrInvalidPhase)
	}
	if !sess.chatReady() {
		return nil, fmt.Errorf("%w: report index must be rebuilt with ingest", ErrNotIndexed)
	}

	turn, err := s.conversation.Ask(ctx, sess.History, text)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventTurn, sess, map[string]any{
		"ordinal":  turn.Ordinal,
		"degraded": turn.Degraded,
	})
	return turn, nil
}

func (s *system) Turns(ctx context.Context, id uuid.UUID) ([]conversation.Turn, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := e.snapshot()
	return sess.History.Turns(), nil
}

func (s *system) Reset(ctx context.Context, id uuid.UUID) error {
	e, err := s.entry(ctx, id)
	if err != nil {
		return err
	}
	if !e.run.TryLock() {
		return ErrSessionBusy
	}
	defer e.run.Unlock()

	sess := e.snapshot()

	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()

	if err := s.index.Drop(ctx, id); err != nil {
		return fmt.Errorf("drop session index: %w", err)
	}
	if err := s.conversation.Forget(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, EventReset, sess, nil)
	s.logger.Info("session reset", "id", id)
	return nil
}

// entry returns the live session for id, restoring it from the Store and
// the conversation Recorder when it is not cached.
func (s *system) entry(ctx context.Context, id uuid.UUID) (*entry, error) {
	s.mu.Lock()
	e, ok := s.live[id]
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	sess, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.conversation.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.History = history
	s.reindex(ctx, sess)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.live[id]; ok {
		return e, nil
	}
	e = &entry{cur: *sess}
	s.live[id] = e
	return e, nil
}

// reindex hands a restored chat session's final artifact set back to the
// index. Persisted Ingested keys say nothing about a process-local index,
// so they only stand once this succeeds. Ingest is idempotent per version.
func (s *system) reindex(ctx context.Context, sess *Session) {
	if sess.Phase != PhaseChat {
		return
	}
	if err := s.ingest(ctx, sess); err != nil {
		sess.Ingested = nil
		s.logger.Warn("session reindex failed", "id", sess.ID, "error", err)
		return
	}
	s.logger.Info("session reindexed", "id", sess.ID, "artifacts", len(sess.Ingested))
}

func (s *system) publish(ctx context.Context, typ string, sess Session, data any) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, events.Event{
		Type:      typ,
		Session:   sess.ID.String(),
		Data:      data,
		Timestamp: s.now(),
	})
	if err != nil {
		s.logger.Warn("event publish failed", "type", typ, "session", sess.ID, "error", err)
	}
}
