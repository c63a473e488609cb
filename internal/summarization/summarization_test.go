package summarization_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/stage"
	"studyforge/internal/summarization"
	"studyforge/internal/testsupport"
)

func setup(t *testing.T, gen *testsupport.FakeGenerator) (*content.Store, *content.Content, *summarization.Summarizer) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	testsupport.SingleGeneratorConfig(cfg, gen.ID())
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "alice", "")
	if err := store.SaveTranscript(context.Background(), &content.Transcript{
		ContentID: item.ID,
		FullText:  "Photosynthesis converts light energy into chemical energy in chloroplasts.",
	}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	invoker := testsupport.NewInvoker(t, cfg, gen)
	return store, item, summarization.NewSummarizer(store, invoker, logging.NewNop())
}

func TestSummarizerStoresSummaryAndConcepts(t *testing.T) {
	gen := testsupport.NewFakeGenerator("primary").
		Reply(generation.TaskSummarization, "  Plants turn light into sugar.  ").
		Reply(generation.TaskConcepts, "```json\n{\"concepts\":[{\"term\":\"Chloroplast\",\"definition\":\"Organelle of photosynthesis\"},{\"term\":\"chloroplast\",\"definition\":\"duplicate\"},{\"term\":\"\",\"definition\":\"invalid\"}]}\n```")
	store, item, handler := setup(t, gen)

	if err := handler.Execute(context.Background(), item, stage.NopProgress); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	summary, err := store.GetSummary(context.Background(), item.ID)
	if err != nil || summary == nil {
		t.Fatalf("GetSummary: %v %v", summary, err)
	}
	if summary.Text != "Plants turn light into sugar." {
		t.Fatalf("unexpected summary %q", summary.Text)
	}
	if len(summary.Concepts) != 1 || summary.Concepts[0].Term != "Chloroplast" {
		t.Fatalf("unexpected concepts %+v", summary.Concepts)
	}
	if summary.GeneratedBy != "primary" {
		t.Fatalf("expected generator recorded, got %q", summary.GeneratedBy)
	}
}

func TestSummarizerAcceptsEmptyConcepts(t *testing.T) {
	gen := testsupport.NewFakeGenerator("primary").
		Reply(generation.TaskSummarization, "Short summary.").
		Reply(generation.TaskConcepts, "There are no distinct concepts here.")
	store, item, handler := setup(t, gen)

	if err := handler.Execute(context.Background(), item, stage.NopProgress); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	summary, _ := store.GetSummary(context.Background(), item.ID)
	if summary == nil || len(summary.Concepts) != 0 {
		t.Fatalf("expected summary without concepts, got %+v", summary)
	}
}

func TestSummarizerSurfacesTerminalQuota(t *testing.T) {
	quota := &generation.QuotaError{Generator: "primary", Scope: generation.ScopeDay, RecoveryAt: time.Now().Add(time.Hour), Message: "daily limit"}
	gen := testsupport.NewFakeGenerator("primary").
		On(generation.TaskSummarization, func(generation.Request) (string, error) {
			return "", &generation.ProviderError{Generator: "primary", Kind: generation.KindFatal, StatusCode: 429, Quota: quota}
		})
	_, item, handler := setup(t, gen)

	err := handler.Execute(context.Background(), item, stage.NopProgress)
	if !generation.IsTerminalQuota(err) {
		t.Fatalf("expected terminal quota, got %v", err)
	}
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota sentinel, got %v", err)
	}
}

func TestSummarizerRejectsEmptySummary(t *testing.T) {
	gen := testsupport.NewFakeGenerator("primary").Reply(generation.TaskSummarization, "   ")
	_, item, handler := setup(t, gen)
	if err := handler.Execute(context.Background(), item, stage.NopProgress); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExcerptCutsOnWordBoundary(t *testing.T) {
	got := summarization.Excerpt("alpha beta gamma delta", 13)
	if got != "alpha beta" {
		t.Fatalf("unexpected excerpt %q", got)
	}
	if summarization.Excerpt("short", 100) != "short" {
		t.Fatal("short text must be returned unchanged")
	}
}

func TestSummarizerDegradesWhenConceptsFail(t *testing.T) {
	gen := testsupport.NewFakeGenerator("primary").
		Reply(generation.TaskSummarization, "A usable summary.").
		On(generation.TaskConcepts, func(generation.Request) (string, error) {
			return "", &generation.ProviderError{Generator: "primary", Kind: generation.KindFatal, StatusCode: 400, Message: "bad request"}
		})
	store, item, handler := setup(t, gen)

	if err := handler.Execute(context.Background(), item, stage.NopProgress); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	summary, _ := store.GetSummary(context.Background(), item.ID)
	if summary == nil || summary.Text != "A usable summary." || len(summary.Concepts) != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestSummarizerRequiresTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.SingleGeneratorConfig(cfg, "primary")
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "alice", "")
	handler := summarization.NewSummarizer(store, testsupport.NewInvoker(t, cfg, testsupport.NewFakeGenerator("primary")), logging.NewNop())
	if err := handler.Prepare(context.Background(), item); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
