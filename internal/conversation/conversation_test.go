package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/internal/artifacts"
	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/index"
	"github.com/kavlartius217/meditrust/internal/prompts"
	"github.com/kavlartius217/meditrust/pkg/pagination"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func echo(_ context.Context, q conversation.Question) (string, error) {
	return fmt.Sprintf("%d excerpts, %d prior", len(q.Context), len(q.PriorTurns)), nil
}

func indexed(t *testing.T, scope uuid.UUID) index.Index {
	t.Helper()
	c, err := index.NewChunker(500, 50)
	require.NoError(t, err)
	idx := index.NewMemory(c)
	require.NoError(t, idx.Ingest(context.Background(), artifacts.Artifact{
		ID: uuid.New(), Scope: scope, Name: artifacts.Extraction, Version: 1, Content: "Hb 9 g/dL",
	}))
	return idx
}

type brokenIndex struct{ index.Index }

func (brokenIndex) Query(context.Context, uuid.UUID, string, int) ([]index.Entry, error) {
	return nil, &index.IndexFailure{Op: "query", Cause: errors.New("connection refused")}
}

type turnCounter struct {
	mu       sync.Mutex
	degraded int
	total    int
}

func (c *turnCounter) ObserveTurn(degraded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if degraded {
		c.degraded++
	}
}

func TestAskRetrievesContext(t *testing.T) {
	scope := uuid.New()
	e := conversation.New(conversation.Runtime{
		Index:    indexed(t, scope),
		Answerer: conversation.AnswererFunc(echo),
		Logger:   discard,
	})
	h := conversation.NewHistory(scope)

	turn, err := e.Ask(context.Background(), h, "What is my Hb level?")
	require.NoError(t, err)

	assert.Equal(t, 1, turn.Ordinal)
	require.NotEmpty(t, turn.Context)
	assert.Contains(t, turn.Context[0].Chunk, "Hb 9 g/dL")
	assert.False(t, turn.Degraded)
	assert.Equal(t, "1 excerpts, 0 prior", turn.BotText)
	assert.Equal(t, 1, h.Len())
}

func TestIndexFailureDegradesTurn(t *testing.T) {
	scope := uuid.New()
	counter := &turnCounter{}
	e := conversation.New(conversation.Runtime{
		Index:    brokenIndex{},
		Answerer: conversation.AnswererFunc(echo),
		Observer: counter,
	})
	h := conversation.NewHistory(scope)

	turn, err := e.Ask(context.Background(), h, "What is my Hb level?")
	require.NoError(t, err)

	assert.True(t, turn.Degraded)
	assert.Empty(t, turn.Context)
	assert.Equal(t, 1, h.Len(), "degraded turns still append")
	assert.Equal(t, 1, counter.degraded)
}

func TestAnswerErrorAppendsNothing(t *testing.T) {
	scope := uuid.New()
	boom := errors.New("model timeout")
	e := conversation.New(conversation.Runtime{
		Index: indexed(t, scope),
		Answerer: conversation.AnswererFunc(func(context.Context, conversation.Question) (string, error) {
			return "", boom
		}),
	})
	h := conversation.NewHistory(scope)

	_, err := e.Ask(context.Background(), h, "Hb?")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, h.Len())

	_, err = e.Ask(context.Background(), h, "   ")
	assert.ErrorIs(t, err, conversation.ErrEmptyQuestion)
}

func TestHistoryOrdinalsUnderConcurrency(t *testing.T) {
	scope := uuid.New()
	e := conversation.New(conversation.Runtime{
		Index:    indexed(t, scope),
		Answerer: conversation.AnswererFunc(echo),
	})
	h := conversation.NewHistory(scope)

	var wg sync.WaitGroup
	for i := range 25 {
		wg.Go(func() {
			_, err := e.Ask(context.Background(), h, fmt.Sprintf("question %d about Hb", i))
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	turns := h.Turns()
	require.Len(t, turns, 25)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Ordinal)
		assert.NotEmpty(t, turn.BotText)
	}
}

func TestPriorTurnsAreWindowed(t *testing.T) {
	scope := uuid.New()
	var seen []int
	e := conversation.New(conversation.Runtime{
		Index: indexed(t, scope),
		Answerer: conversation.AnswererFunc(func(_ context.Context, q conversation.Question) (string, error) {
			seen = append(seen, len(q.PriorTurns))
			return "ok", nil
		}),
		Config: conversation.Config{Window: new(2)},
	})
	h := conversation.NewHistory(scope)

	for range 4 {
		_, err := e.Ask(context.Background(), h, "Hb?")
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 1, 2, 2}, seen)
}

type memRecorder struct {
	mu    sync.Mutex
	turns map[uuid.UUID][]conversation.Turn
	fail  error
}

func (r *memRecorder) Record(_ context.Context, scope uuid.UUID, t conversation.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.turns[scope] = append(r.turns[scope], t)
	return nil
}

func (r *memRecorder) Load(_ context.Context, scope uuid.UUID) ([]conversation.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]conversation.Turn(nil), r.turns[scope]...), nil
}

func (r *memRecorder) Delete(_ context.Context, scope uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, scope)
	return nil
}

// stalledRecorder blocks in Record until release is closed.
type stalledRecorder struct {
	memRecorder
	entered chan struct{}
	release chan struct{}
}

func (r *stalledRecorder) Record(ctx context.Context, scope uuid.UUID, t conversation.Turn) error {
	close(r.entered)
	<-r.release
	return r.memRecorder.Record(ctx, scope, t)
}

func TestReadersDoNotWaitOnRecorder(t *testing.T) {
	ctx := context.Background()
	scope := uuid.New()
	rec := &stalledRecorder{
		memRecorder: memRecorder{turns: map[uuid.UUID][]conversation.Turn{}},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	e := conversation.New(conversation.Runtime{
		Index:    indexed(t, scope),
		Answerer: conversation.AnswererFunc(echo),
		Recorder: rec,
	})
	h := conversation.NewHistory(scope)

	done := make(chan error, 1)
	go func() {
		_, err := e.Ask(ctx, h, "What is my Hb level?")
		done <- err
	}()
	<-rec.entered

	read := make(chan int, 1)
	go func() { read <- h.Len() + len(h.Turns()) + len(h.Last(2)) }()

	select {
	case n := <-read:
		assert.Zero(t, n, "the turn is not visible before it is recorded")
	case <-time.After(time.Second):
		t.Fatal("history readers blocked while a turn was being recorded")
	}

	close(rec.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.Len())
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	scope := uuid.New()
	rec := &memRecorder{turns: map[uuid.UUID][]conversation.Turn{}}
	e := conversation.New(conversation.Runtime{
		Index:    indexed(t, scope),
		Answerer: conversation.AnswererFunc(echo),
		Recorder: rec,
	})

	h, err := e.Load(ctx, scope)
	require.NoError(t, err)
	_, err = e.Ask(ctx, h, "Hb?")
	require.NoError(t, err)

	require.NoError(t, e.Forget(ctx, scope))
	restored, err := e.Load(ctx, scope)
	require.NoError(t, err)
	assert.Zero(t, restored.Len())

	assert.NoError(t, conversation.New(conversation.Runtime{}).Forget(ctx, scope), "no recorder")
}

func TestRecorderPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	scope := uuid.New()
	rec := &memRecorder{turns: map[uuid.UUID][]conversation.Turn{}}
	e := conversation.New(conversation.Runtime{
		Index:    indexed(t, scope),
		Answerer: conversation.AnswererFunc(echo),
		Recorder: rec,
	})

	h, err := e.Load(ctx, scope)
	require.NoError(t, err)
	for range 3 {
		_, err := e.Ask(ctx, h, "Hb?")
		require.NoError(t, err)
	}

	restored, err := e.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, h.Turns(), restored.Turns())

	rec.fail = errors.New("disk full")
	_, err = e.Ask(ctx, h, "Hb again?")
	assert.Error(t, err)
	assert.Equal(t, 3, h.Len(), "a turn that cannot be recorded is not appended")
}

func TestRestoreRejectsGaps(t *testing.T) {
	_, err := conversation.Restore(uuid.New(), []conversation.Turn{{Ordinal: 1}, {Ordinal: 3}})
	assert.ErrorIs(t, err, conversation.ErrCorruptHistory)
}

func TestComposePrompt(t *testing.T) {
	ps := prompts.NewMemory(discard, pagination.Config{DefaultPageSize: 10, MaxPageSize: 10})

	prompt, err := conversation.ComposePrompt(context.Background(), ps, conversation.Question{
		UserText: "Is my Hb low?",
		Context:  []index.Entry{{Name: "extraction", Version: 1, Offset: 0, Chunk: "Hb 9 g/dL"}},
		PriorTurns: []conversation.Turn{
			{Ordinal: 1, UserText: "Hello", BotText: "Hi, how can I help?"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "[extraction v1 @0]\nHb 9 g/dL")
	assert.Contains(t, prompt, "User: Hello\nAssistant: Hi, how can I help?")
	assert.True(t, strings.HasSuffix(prompt, "Question: Is my Hb low?"))

	prompt, err = conversation.ComposePrompt(context.Background(), ps, conversation.Question{UserText: "Hb?"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "(none available)")
}

func TestConfigFinalize(t *testing.T) {
	t.Setenv("TEST_CONVERSATION_WINDOW", "10")

	var cfg conversation.Config
	require.NoError(t, cfg.Finalize(&conversation.Env{Window: "TEST_CONVERSATION_WINDOW"}))
	assert.Equal(t, 4, cfg.TopK)
	assert.Equal(t, 10, cfg.HistoryWindow())

	bad := conversation.Config{TopK: -1}
	assert.Error(t, bad.Finalize(nil))
}

func TestZeroWindowSendsNoPriorTurns(t *testing.T) {
	cfg := conversation.Config{Window: new(0)}
	require.NoError(t, cfg.Finalize(nil))
	assert.Equal(t, 0, cfg.HistoryWindow())

	scope := uuid.New()
	e := conversation.New(conversation.Runtime{
		Index:    indexed(t, scope),
		Answerer: conversation.AnswererFunc(echo),
		Config:   cfg,
	})
	h := conversation.NewHistory(scope)

	for range 2 {
		_, err := e.Ask(context.Background(), h, "Hb?")
		require.NoError(t, err)
	}
	assert.Equal(t, "1 excerpts, 0 prior", h.Turns()[1].BotText)

	var unset conversation.Config
	require.NoError(t, unset.Finalize(nil))
	assert.Equal(t, conversation.DefaultWindow, unset.HistoryWindow())
}
