package qa_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/qa"
	"studyforge/internal/services"
	"studyforge/internal/testsupport"
	"studyforge/internal/vectorstore"
)

type qaFixture struct {
	store   *content.Store
	vectors *vectorstore.Memory
	gen     *testsupport.FakeGenerator
	svc     *qa.Service
	item    *content.Content
}

func newQAFixture(t *testing.T, vectorized bool) *qaFixture {
	t.Helper()
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	testsupport.SingleGeneratorConfig(cfg, "primary")
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "alice", "")
	if vectorized {
		item.Stages.Get(content.StageVectorization).Status = content.StageCompleted
		require.NoError(t, store.Update(ctx, item))
	}

	embedder := &testsupport.FakeEmbedder{Dimensions: 256}
	chunks := []string{
		"photosynthesis converts light into chemical energy",
		"the french revolution began in 1789",
	}
	vecs, err := embedder.Embed(ctx, chunks)
	require.NoError(t, err)
	memory := vectorstore.NewMemory()
	var records []vectorstore.Record
	for i, text := range chunks {
		records = append(records, vectorstore.Record{ContentID: item.ID, ChunkIndex: i, Text: text, Vector: vecs[i]})
	}
	require.NoError(t, memory.Upsert(ctx, records))

	gen := testsupport.NewFakeGenerator("primary").Reply(generation.TaskAnswer, "It turns light into chemical energy.")
	invoker := testsupport.NewInvoker(t, cfg, gen)
	return &qaFixture{
		store:   store,
		vectors: memory,
		gen:     gen,
		svc:     qa.NewService(store, memory, embedder, invoker, 1, logging.NewNop()),
		item:    item,
	}
}

func TestAskStreamsGroundedAnswer(t *testing.T) {
	f := newQAFixture(t, true)
	ctx := context.Background()

	var streamed strings.Builder
	answer, err := f.svc.Ask(ctx, f.item.ID, "", "alice", "What does photosynthesis convert?", func(tok string) error {
		streamed.WriteString(tok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "It turns light into chemical energy.", streamed.String())
	assert.Equal(t, "It turns light into chemical energy.", answer.Entry.Answer)
	assert.Equal(t, "primary", answer.Entry.Generator)
	require.Len(t, answer.Entry.Sources, 1)
	assert.Equal(t, vectorstore.RecordID(f.item.ID, 0), answer.Entry.Sources[0])

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "photosynthesis converts light")
	assert.NotContains(t, calls[0].Prompt, "french revolution")

	history, err := f.svc.History(ctx, answer.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "What does photosynthesis convert?", history[0].Question)
}

func TestAskReusesSession(t *testing.T) {
	f := newQAFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.Ask(ctx, f.item.ID, "", "alice", "What is photosynthesis?", nil)
	require.NoError(t, err)
	second, err := f.svc.Ask(ctx, f.item.ID, first.SessionID, "alice", "When did the revolution begin?", nil)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	history, err := f.svc.History(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAskValidatesInput(t *testing.T) {
	f := newQAFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, f.item.ID, "", "alice", "   ", nil)
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.svc.Ask(ctx, "missing", "", "alice", "anything?", nil)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Zero(t, f.gen.CallsFor(generation.TaskAnswer))
}

func TestAskRequiresVectorizedContent(t *testing.T) {
	f := newQAFixture(t, false)
	_, err := f.svc.Ask(context.Background(), f.item.ID, "", "alice", "What is photosynthesis?", nil)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestAskSurfacesGenerationFailure(t *testing.T) {
	f := newQAFixture(t, true)
	f.gen.On(generation.TaskAnswer, func(generation.Request) (string, error) {
		return "", &generation.ProviderError{Generator: "primary", Kind: generation.KindFatal, StatusCode: 400, Message: "bad request"}
	})
	_, err := f.svc.Ask(context.Background(), f.item.ID, "", "alice", "What is photosynthesis?", nil)
	require.Error(t, err)

	sessions, err := f.store.DB().Query(`SELECT COUNT(1) FROM qa_entries`)
	require.NoError(t, err)
	defer sessions.Close()
	require.True(t, sessions.Next())
	var n int
	require.NoError(t, sessions.Scan(&n))
	assert.Zero(t, n)
}
