package vectorization_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/stage"
	"studyforge/internal/testsupport"
	"studyforge/internal/vectorization"
	"studyforge/internal/vectorstore"
)

const passage = "Mitochondria produce ATP through cellular respiration. " +
	"Glycolysis happens in the cytoplasm. " +
	"The Krebs cycle runs in the mitochondrial matrix. " +
	"Oxidative phosphorylation uses the electron transport chain."

func TestVectorizerEmbedsAndReplacesChunks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	item := testsupport.NewContent(t, store, "alice", "")
	if err := store.SaveTranscript(ctx, &content.Transcript{ContentID: item.ID, FullText: passage}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	vectors := vectorstore.NewMemory()
	// A stale chunk from an earlier run must disappear.
	if err := vectors.Upsert(ctx, []vectorstore.Record{{ContentID: item.ID, ChunkIndex: 99, Text: "stale", Vector: []float32{1}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	embedder := &testsupport.FakeEmbedder{Dimensions: 1024}
	handler := vectorization.NewVectorizer(store, vectors, embedder, 80, 20, logging.NewNop())

	if err := handler.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	var reports []int
	if err := handler.Execute(ctx, item, func(p int, _ string) { reports = append(reports, p) }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	chunks, _ := handler.Chunk(passage)
	if len(chunks) < 2 {
		t.Fatalf("expected passage to split, got %d chunks", len(chunks))
	}
	if got := vectors.Count(vectorstore.ContentFilter(item.ID)); got != len(chunks) {
		t.Fatalf("expected %d records, got %d", len(chunks), got)
	}
	if got := vectors.Count(vectorstore.Filter{vectorstore.KeyText: "stale"}); got != 0 {
		t.Fatalf("expected stale chunk removed")
	}
	if reports[len(reports)-1] != 100 {
		t.Fatalf("expected final progress 100, got %v", reports)
	}

	matches, err := vectors.Query(ctx, mustEmbed(t, embedder, "Krebs cycle matrix"), vectorstore.ContentFilter(item.ID), 1)
	if err != nil || len(matches) != 1 {
		t.Fatalf("Query: %v %v", matches, err)
	}
	if !strings.Contains(matches[0].Text, "Krebs") {
		t.Fatalf("expected the Krebs chunk to rank first, got %q", matches[0].Text)
	}
}

func mustEmbed(t *testing.T, e *testsupport.FakeEmbedder, text string) []float32 {
	t.Helper()
	out, err := e.Embed(context.Background(), []string{text})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	return out[0]
}

func TestVectorizerRequiresTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "alice", "")
	handler := vectorization.NewVectorizer(store, vectorstore.NewMemory(), &testsupport.FakeEmbedder{}, 100, 10, logging.NewNop())
	if err := handler.Prepare(context.Background(), item); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVectorizerPropagatesEmbedderFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	item := testsupport.NewContent(t, store, "alice", "")
	_ = store.SaveTranscript(ctx, &content.Transcript{ContentID: item.ID, FullText: passage})
	boom := services.Wrap(services.ErrTransient, "embedding", "embed", "connection reset", nil)
	handler := vectorization.NewVectorizer(store, vectorstore.NewMemory(), &testsupport.FakeEmbedder{Err: boom}, 100, 10, logging.NewNop())
	err := handler.Execute(ctx, item, stage.NopProgress)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
