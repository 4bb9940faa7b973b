package sessions_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/internal/artifacts"
	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/documents"
	"github.com/kavlartius217/meditrust/internal/index"
	"github.com/kavlartius217/meditrust/internal/sessions"
	"github.com/kavlartius217/meditrust/internal/stages"
	"github.com/kavlartius217/meditrust/internal/workflow"
	"github.com/kavlartius217/meditrust/pkg/events"
	"github.com/kavlartius217/meditrust/pkg/pagination"
	"github.com/kavlartius217/meditrust/pkg/routes"
	"github.com/kavlartius217/meditrust/pkg/storage"
)

const report = "Hb 9 g/dL"

var pageCfg = pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type genCall struct {
	stage  workflow.StageID
	inputs map[string]string
}

type generator struct {
	mu    sync.Mutex
	calls []genCall
	fail  map[workflow.StageID]error

	block   chan struct{}
	started chan struct{}
}

func (g *generator) Generate(_ context.Context, st workflow.Stage, inputs map[string]string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, genCall{stage: st.ID, inputs: inputs})
	err := g.fail[st.ID]
	block, started := g.block, g.started
	g.mu.Unlock()

	if block != nil && st.ID == "extraction" {
		close(started)
		<-block
	}
	if err != nil {
		return "", err
	}

	switch st.ID {
	case "extraction":
		return "Extracted values:\n" + inputs["report"], nil
	case "explanation":
		return "Hb 9 g/dL is below the reference range of 13.5 to 17.5 g/dL and is abnormal.", nil
	case "abnormalities":
		return "- Hb 9 g/dL: low haemoglobin, severity moderate.", nil
	case "doctors":
		return fmt.Sprintf("Haematologists in %s for: %s", inputs["user_city"], inputs["abnormalities"]), nil
	}
	return "", fmt.Errorf("unexpected stage %s", st.ID)
}

func (g *generator) setFail(id workflow.StageID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail == nil {
		g.fail = make(map[workflow.StageID]error)
	}
	if err == nil {
		delete(g.fail, id)
		return
	}
	g.fail[id] = err
}

func (g *generator) callsFor(id workflow.StageID) []genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []genCall
	for _, c := range g.calls {
		if c.stage == id {
			out = append(out, c)
		}
	}
	return out
}

// flakyIndex fails ingest or query on demand.
type flakyIndex struct {
	index.Index
	failIngest atomic.Bool
	failQuery  atomic.Bool
}

func (f *flakyIndex) Ingest(ctx context.Context, a artifacts.Artifact) error {
	if f.failIngest.Load() {
		return &index.IndexFailure{Op: "ingest", Cause: errors.New("backend unavailable")}
	}
	return f.Index.Ingest(ctx, a)
}

func (f *flakyIndex) Query(ctx context.Context, scope uuid.UUID, text string, k int) ([]index.Entry, error) {
	if f.failQuery.Load() {
		return nil, &index.IndexFailure{Op: "query", Cause: errors.New("backend unavailable")}
	}
	return f.Index.Query(ctx, scope, text, k)
}

type harness struct {
	sys       sessions.System
	gen       *generator
	idx       *flakyIndex
	artifacts artifacts.System
	documents documents.System
	store     sessions.Store
	events    *events.Recorder
}

type option func(*workflow.Runtime)

func withRoute(route workflow.RouteFunc) option {
	return func(rt *workflow.Runtime) { rt.Route = route }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		gen:       &generator{},
		artifacts: artifacts.NewMemory(discard(), pageCfg),
		store:     sessions.NewMemoryStore(),
		events:    &events.Recorder{},
	}
	h.documents = documents.NewMemory(storage.NewMemory(), discard(), pageCfg)

	chunker, err := index.NewChunker(500, 50)
	require.NoError(t, err)
	h.idx = &flakyIndex{Index: index.NewMemory(chunker)}

	rt := workflow.Runtime{
		Definition: workflow.Default(),
		Runner:     stages.NewRunner(h.artifacts, h.gen, discard()),
		Logger:     discard(),
	}
	for _, opt := range opts {
		opt(&rt)
	}
	engine, err := workflow.New(rt)
	require.NoError(t, err)

	conv := conversation.New(conversation.Runtime{
		Index: h.idx,
		Answerer: conversation.AnswererFunc(func(_ context.Context, q conversation.Question) (string, error) {
			return fmt.Sprintf("answer to %q from %d excerpts", q.UserText, len(q.Context)), nil
		}),
		Logger: discard(),
	})

	h.sys, err = sessions.New(sessions.Runtime{
		Workflow:     engine,
		Conversation: conv,
		Index:        h.idx,
		Documents:    h.documents,
		Store:        h.store,
		Events:       h.events,
		Logger:       discard(),
	})
	require.NoError(t, err)
	return h
}

func (h *harness) analyzed(t *testing.T) *sessions.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := h.sys.Create(ctx, sessions.CreateCommand{Report: report})
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseUpload, sess.Phase)

	sess, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{})
	require.NoError(t, err)
	require.Equal(t, sessions.PhaseAnalysis, sess.Phase)
	require.True(t, sess.State.Awaiting())
	return sess
}

func (h *harness) chatting(t *testing.T) *sessions.Session {
	t.Helper()
	sess := h.analyzed(t)
	sess, err := h.sys.Advance(context.Background(), sess.ID, workflow.Trigger{Decision: workflow.Stop})
	require.NoError(t, err)
	require.Equal(t, sessions.PhaseChat, sess.Phase)
	return sess
}

func TestStopRoutesToChat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.analyzed(t)

	for _, id := range []workflow.StageID{"extraction", "explanation", "abnormalities"} {
		a, ok := sess.State.Artifact(id)
		require.True(t, ok, id)
		assert.Equal(t, 1, a.Version)
	}
	explanation, _ := sess.State.Artifact("explanation")
	assert.Contains(t, explanation.Content, "abnormal")
	abnormal, _ := sess.State.Artifact("abnormalities")
	assert.Contains(t, abnormal.Content, "Hb 9 g/dL")
	assert.Contains(t, abnormal.Content, "severity")

	_, err := h.sys.Ask(ctx, sess.ID, "What is my Hb level?")
	assert.ErrorIs(t, err, sessions.ErrInvalidPhase)

	sess, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{Decision: workflow.Stop})
	require.NoError(t, err)

	assert.Equal(t, sessions.PhaseChat, sess.Phase)
	assert.True(t, sess.State.Terminal())
	assert.Empty(t, h.gen.callsFor("doctors"))
	assert.Equal(t, []string{"abnormalities@v1", "explanation@v1", "extraction@v1"}, sess.Ingested)
	assert.Contains(t, h.events.Types(), sessions.EventChatReady)

	_, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{})
	assert.ErrorIs(t, err, sessions.ErrInvalidPhase)
}

func TestProceedRunsDoctorsWithCity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.analyzed(t)

	sess, err := h.sys.Advance(ctx, sess.ID, workflow.Trigger{Decision: workflow.Proceed})
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseDoctor, sess.Phase)
	assert.True(t, sess.State.Awaiting(), "doctors waits for user_city")

	_, err = h.sys.Ask(ctx, sess.ID, "Which doctor?")
	assert.ErrorIs(t, err, sessions.ErrInvalidPhase)

	sess, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{Params: map[string]string{"user_city": "Pune"}})
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseChat, sess.Phase)

	calls := h.gen.callsFor("doctors")
	require.Len(t, calls, 1)
	assert.Equal(t, "Pune", calls[0].inputs["user_city"])
	assert.Contains(t, calls[0].inputs["abnormalities"], "severity moderate")

	doctors, ok := sess.State.Artifact("doctors")
	require.True(t, ok)
	assert.Contains(t, doctors.Content, "Pune")
	assert.Contains(t, sess.Ingested, "doctors@v1")
}

func TestAskRetrievesExtraction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.chatting(t)

	turn, err := h.sys.Ask(ctx, sess.ID, "What is my Hb level?")
	require.NoError(t, err)

	assert.Equal(t, 1, turn.Ordinal)
	assert.False(t, turn.Degraded)
	require.NotEmpty(t, turn.Context)
	assert.Equal(t, artifacts.Extraction, turn.Context[0].Name)
	assert.Contains(t, turn.Context[0].Chunk, "Hb 9 g/dL")

	turns, err := h.sys.Turns(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, turn.BotText, turns[0].BotText)
}

func TestUnknownLabelAbortsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withRoute(func(context.Context, workflow.Stage, workflow.State) (string, error) {
		return "Unknown", nil
	}))
	before := h.analyzed(t)

	sess, err := h.sys.Advance(ctx, before.ID, workflow.Trigger{Decision: workflow.Proceed})

	var cfg *workflow.ConfigurationFailure
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "Unknown", cfg.Label)
	require.NotNil(t, sess)
	assert.Equal(t, before.State.Current, sess.State.Current)
	assert.Equal(t, before.State.Decision, sess.State.Decision)
	assert.NotEmpty(t, sess.Aborted)
	assert.Equal(t, sessions.PhaseAnalysis, sess.Phase)
	assert.Empty(t, h.gen.callsFor("doctors"))

	_, err = h.sys.Advance(ctx, before.ID, workflow.Trigger{})
	assert.ErrorIs(t, err, sessions.ErrAborted)
	assert.Equal(t, http.StatusConflict, sessions.MapHTTPStatus(err))
}

func TestAdvanceGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("decision before analysis", func(t *testing.T) {
		h := newHarness(t)
		sess, err := h.sys.Create(ctx, sessions.CreateCommand{Report: report})
		require.NoError(t, err)

		_, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{Decision: workflow.Stop})
		assert.ErrorIs(t, err, sessions.ErrInvalidPhase)
		assert.Empty(t, h.gen.callsFor("extraction"))
	})

	t.Run("decision is locked", func(t *testing.T) {
		h := newHarness(t)
		sess := h.analyzed(t)

		_, err := h.sys.Advance(ctx, sess.ID, workflow.Trigger{Decision: workflow.Proceed})
		require.NoError(t, err)

		_, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{Decision: workflow.Stop})
		assert.ErrorIs(t, err, workflow.ErrDecisionLocked)

		got, err := h.sys.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.Proceed, got.State.Decision)
		assert.Equal(t, sessions.PhaseDoctor, got.Phase)
	})

	t.Run("empty report", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.sys.Create(ctx, sessions.CreateCommand{Report: "  "})
		assert.ErrorIs(t, err, workflow.ErrMissingReport)
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.sys.Advance(ctx, uuid.New(), workflow.Trigger{})
		assert.ErrorIs(t, err, sessions.ErrNotFound)
	})
}

func TestStageFailureAndRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.setFail("explanation", errors.New("model timeout"))

	sess, err := h.sys.Create(ctx, sessions.CreateCommand{Report: report})
	require.NoError(t, err)

	sess, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{})
	var sf *workflow.StageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, workflow.StageID("explanation"), sf.Stage)
	assert.Equal(t, http.StatusBadGateway, sessions.MapHTTPStatus(err))

	require.NotNil(t, sess)
	assert.Equal(t, sessions.PhaseUpload, sess.Phase)
	assert.True(t, sess.State.Halted())
	assert.Contains(t, sess.State.Failed, workflow.StageID("explanation"))
	_, ok := sess.State.Artifact("extraction")
	assert.True(t, ok, "completed stages are kept")

	h.gen.setFail("explanation", nil)

	sess, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{})
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseUpload, sess.Phase, "failed stages are not re-run without a retry")

	sess, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{Retry: []workflow.StageID{"explanation"}})
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseAnalysis, sess.Phase)
	assert.Len(t, h.gen.callsFor("extraction"), 1)
	assert.Len(t, h.gen.callsFor("explanation"), 2)
}

func TestChatRequiresIngestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.analyzed(t)

	_, err := h.sys.IngestAll(ctx, sess.ID)
	assert.ErrorIs(t, err, sessions.ErrNotReady)

	h.idx.failIngest.Store(true)
	sess, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{Decision: workflow.Stop})

	var ixf *index.IndexFailure
	require.ErrorAs(t, err, &ixf)
	assert.Equal(t, http.StatusServiceUnavailable, sessions.MapHTTPStatus(err))
	require.NotNil(t, sess)
	assert.True(t, sess.State.Terminal())
	assert.Equal(t, sessions.PhaseAnalysis, sess.Phase)
	assert.Empty(t, sess.Ingested)

	_, err = h.sys.Ask(ctx, sess.ID, "What is my Hb level?")
	assert.ErrorIs(t, err, sessions.ErrInvalidPhase)

	h.idx.failIngest.Store(false)
	sess, err = h.sys.IngestAll(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseChat, sess.Phase)
}

func TestDegradedTurnStillAppends(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.chatting(t)

	first, err := h.sys.Ask(ctx, sess.ID, "What is my Hb level?")
	require.NoError(t, err)

	h.idx.failQuery.Store(true)
	second, err := h.sys.Ask(ctx, sess.ID, "Is that serious?")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Ordinal)
	assert.Equal(t, 2, second.Ordinal)
	assert.True(t, second.Degraded)
	assert.Empty(t, second.Context)
}

func TestConcurrentAsksKeepOrdinals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.chatting(t)

	const n = 8
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			_, err := h.sys.Ask(ctx, sess.ID, fmt.Sprintf("question %d about Hb", i))
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	turns, err := h.sys.Turns(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, turns, n)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Ordinal)
	}
}

func TestBusySessionRejectsTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.block = make(chan struct{})
	h.gen.started = make(chan struct{})

	sess, err := h.sys.Create(ctx, sessions.CreateCommand{Report: report})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.sys.Advance(ctx, sess.ID, workflow.Trigger{})
		done <- err
	}()
	<-h.gen.started

	_, err = h.sys.Advance(ctx, sess.ID, workflow.Trigger{})
	assert.ErrorIs(t, err, sessions.ErrSessionBusy)
	assert.ErrorIs(t, h.sys.Reset(ctx, sess.ID), sessions.ErrSessionBusy)

	got, err := h.sys.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseUpload, got.Phase, "readers see the last committed snapshot")

	close(h.gen.block)
	require.NoError(t, <-done)
}

func TestResetDiscardsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.chatting(t)

	require.NoError(t, h.sys.Reset(ctx, sess.ID))

	_, err := h.sys.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, sessions.ErrNotFound)

	entries, err := h.idx.Query(ctx, sess.ID, "Hb", 4)
	require.NoError(t, err)
	assert.Empty(t, entries)

	a, err := h.artifacts.Latest(ctx, sess.ID, artifacts.Extraction)
	require.NoError(t, err, "artifacts outlive the session")
	assert.Equal(t, 1, a.Version)
	assert.Contains(t, h.events.Types(), sessions.EventReset)
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	sess, err := h.sys.Upload(ctx, documents.Upload{
		Filename:    "lab.md",
		ContentType: documents.ContentTypeMarkdown,
		Data:        []byte("# Blood panel\n\n" + report),
	})
	require.NoError(t, err)
	require.NotNil(t, sess.Document)
	assert.Contains(t, sess.State.Report, report)

	doc, err := h.documents.Find(ctx, *sess.Document)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, doc.Scope)

	_, err = h.sys.Upload(ctx, documents.Upload{Filename: "scan.png", Data: []byte("\x89PNG\r\n\x1a\n")})
	var slf *documents.SourceLoadFailure
	require.ErrorAs(t, err, &slf)
	assert.Equal(t, http.StatusUnsupportedMediaType, sessions.MapHTTPStatus(err))

	page, err := h.documents.List(ctx, pagination.PageRequest{}, documents.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "a failed load stores nothing")
	assert.Empty(t, h.gen.callsFor("extraction"))
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.analyzed(t)

	engine, err := workflow.New(workflow.Runtime{
		Definition: workflow.Default(),
		Runner:     stages.NewRunner(h.artifacts, h.gen, discard()),
	})
	require.NoError(t, err)

	restored, err := sessions.New(sessions.Runtime{
		Workflow:     engine,
		Conversation: conversation.New(conversation.Runtime{Index: h.idx}),
		Index:        h.idx,
		Store:        h.store,
	})
	require.NoError(t, err)

	got, err := restored.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseAnalysis, got.Phase)
	assert.Equal(t, report, got.State.Report)
	require.NotNil(t, got.History)
	assert.Zero(t, got.History.Len())
}

type turnLog struct {
	mu    sync.Mutex
	turns map[uuid.UUID][]conversation.Turn
}

func (l *turnLog) Record(_ context.Context, scope uuid.UUID, t conversation.Turn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns[scope] = append(l.turns[scope], t)
	return nil
}

func (l *turnLog) Load(_ context.Context, scope uuid.UUID) ([]conversation.Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]conversation.Turn(nil), l.turns[scope]...), nil
}

func (l *turnLog) Delete(_ context.Context, scope uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.turns, scope)
	return nil
}

// restart builds a second System over the same store and artifacts, with
// a fresh process-local index, as after a process restart.
func (h *harness) restart(t *testing.T, rec conversation.Recorder) (sessions.System, *flakyIndex) {
	t.Helper()
	chunker, err := index.NewChunker(500, 50)
	require.NoError(t, err)
	idx := &flakyIndex{Index: index.NewMemory(chunker)}

	engine, err := workflow.New(workflow.Runtime{
		Definition: workflow.Default(),
		Runner:     stages.NewRunner(h.artifacts, h.gen, discard()),
	})
	require.NoError(t, err)

	sys, err := sessions.New(sessions.Runtime{
		Workflow: engine,
		Conversation: conversation.New(conversation.Runtime{
			Index: idx,
			Answerer: conversation.AnswererFunc(func(_ context.Context, q conversation.Question) (string, error) {
				return fmt.Sprintf("%d excerpts", len(q.Context)), nil
			}),
			Recorder: rec,
		}),
		Index: idx,
		Store: h.store,
	})
	require.NoError(t, err)
	return sys, idx
}

func TestRestoredChatSessionIsReindexed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.chatting(t)

	restored, _ := h.restart(t, nil)

	got, err := restored.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseChat, got.Phase)
	assert.Equal(t, sess.Ingested, got.Ingested)

	turn, err := restored.Ask(ctx, sess.ID, "What is my Hb level?")
	require.NoError(t, err)
	assert.False(t, turn.Degraded)
	require.NotEmpty(t, turn.Context)
	assert.Contains(t, turn.Context[0].Chunk, "Hb 9 g/dL")
}

func TestRestoredChatSessionNeedsIngestWhenReindexFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.chatting(t)

	restored, idx := h.restart(t, nil)
	idx.failIngest.Store(true)

	got, err := restored.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sessions.PhaseChat, got.Phase)
	assert.Empty(t, got.Ingested)

	_, err = restored.Ask(ctx, sess.ID, "What is my Hb level?")
	assert.ErrorIs(t, err, sessions.ErrNotIndexed)
	assert.Equal(t, http.StatusConflict, sessions.MapHTTPStatus(err))

	idx.failIngest.Store(false)
	got, err = restored.IngestAll(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Ingested, got.Ingested)

	turn, err := restored.Ask(ctx, sess.ID, "What is my Hb level?")
	require.NoError(t, err)
	assert.NotEmpty(t, turn.Context)
}

func TestResetForgetsRecordedTurns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sess := h.chatting(t)

	rec := &turnLog{turns: map[uuid.UUID][]conversation.Turn{}}
	sys, _ := h.restart(t, rec)

	_, err := sys.Ask(ctx, sess.ID, "What is my Hb level?")
	require.NoError(t, err)
	require.Len(t, rec.turns[sess.ID], 1)

	require.NoError(t, sys.Reset(ctx, sess.ID))
	assert.NotContains(t, rec.turns, sess.ID)
}

func TestHandler(t *testing.T) {
	h := newHarness(t)
	mux := http.NewServeMux()
	routes.Register(mux, h.sys.Handler(1<<20).Routes())

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/sessions", sessions.CreateRequest{Report: report})
	require.Equal(t, http.StatusCreated, rec.Code)

	var view struct {
		ID    uuid.UUID      `json:"id"`
		Phase sessions.Phase `json:"phase"`
		Turns int            `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	base := "/sessions/" + view.ID.String()

	rec = do(http.MethodPost, base+"/ask", sessions.AskRequest{Question: "Hb?"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodPost, base+"/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, sessions.PhaseAnalysis, view.Phase)

	rec = do(http.MethodPost, base+"/decision", sessions.DecisionRequest{Decision: "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, base+"/decision", sessions.DecisionRequest{Decision: "dont proceed"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, sessions.PhaseChat, view.Phase)

	rec = do(http.MethodPost, base+"/ask", sessions.AskRequest{Question: "What is my Hb level?"})
	require.Equal(t, http.StatusOK, rec.Code)
	var answer sessions.AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, 1, answer.Turn.Ordinal)
	assert.True(t, strings.HasPrefix(answer.Answer, "answer to"))

	rec = do(http.MethodGet, base+"/turns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
	assert.Len(t, turns, 1)

	rec = do(http.MethodGet, base, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 1, view.Turns)

	rec = do(http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodGet, "/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
