package quizzes_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/quizzes"
	"studyforge/internal/services"
	"studyforge/internal/stage"
	"studyforge/internal/testsupport"
)

const quizJSON = `{"title":"Cells","questions":[
 {"type":"multiple-choice","question":"Where does the Krebs cycle run?","options":["Mitochondria","Nucleus"],"correctAnswer":"Mitochondria","tags":["respiration"]},
 {"type":"true-false","question":"NADH carries electrons.","correctAnswer":true,"points":2,"tags":["carriers"]},
 {"type":"short-answer","question":"Name the product.","correctAnswer":"","tags":["respiration"]},
 {"type":"essay","question":"Compare glycolysis and fermentation.","tags":["pathways"]},
 {"type":"multi-select","question":"Which are carriers?","options":["NADH","FADH2","ATP"],"correctAnswer":["NADH","FADH2"]}
]}`

type fixture struct {
	store *content.Store
	item  *content.Content
	gen   *testsupport.FakeGenerator
	svc   *quizzes.Service
}

func newFixture(t *testing.T, gen *testsupport.FakeGenerator, coalescer generation.Coalescer) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	testsupport.SingleGeneratorConfig(cfg, gen.ID())
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "alice", "")
	if err := store.SaveSummary(context.Background(), &content.Summary{ContentID: item.ID, Text: "Cellular respiration."}); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	svc := quizzes.NewService(store, testsupport.NewInvoker(t, cfg, gen), coalescer, quizzes.Options{
		QuestionCount:    5,
		VersionsRetained: 3,
	}, logging.NewNop())
	return &fixture{store: store, item: item, gen: gen, svc: svc}
}

func TestGenerateInstallsVersions(t *testing.T) {
	f := newFixture(t, testsupport.NewFakeGenerator("primary").Reply(generation.TaskQuiz, quizJSON), nil)
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, f.item.ID, "alice", content.DifficultyBeginner)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(first.Questions) != 4 {
		t.Fatalf("expected 4 gradable questions, got %d", len(first.Questions))
	}
	q := first.Questions
	if q[0].ID != "q1" || q[0].Points != 1 || q[1].Points != 2 {
		t.Fatalf("unexpected normalization: %+v", q[:2])
	}
	if q[1].CorrectAnswer.String() != "true" || len(q[1].Options) != 2 {
		t.Fatalf("unexpected true-false question %+v", q[1])
	}
	if !q[3].CorrectAnswer.Multi {
		t.Fatal("expected multi-select answer to be a list")
	}

	second, err := f.svc.Generate(ctx, f.item.ID, "alice", content.DifficultyBeginner)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if second.Version != 2 || second.PreviousVersionID != first.ID {
		t.Fatalf("unexpected second version %+v", second)
	}
	active, err := f.store.ActiveQuiz(ctx, f.item.ID, content.DifficultyBeginner)
	if err != nil || active == nil || active.ID != second.ID {
		t.Fatalf("expected the second version active, got %+v %v", active, err)
	}
}

func TestGenerateRejectsUnknownDifficulty(t *testing.T) {
	f := newFixture(t, testsupport.NewFakeGenerator("primary"), nil)
	if _, err := f.svc.Generate(context.Background(), f.item.ID, "alice", "expert"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.gen.Calls()) != 0 {
		t.Fatal("expected no generator call")
	}
}

func TestGenerateUnknownContent(t *testing.T) {
	f := newFixture(t, testsupport.NewFakeGenerator("primary").Reply(generation.TaskQuiz, quizJSON), nil)
	if _, err := f.svc.Generate(context.Background(), "missing", "alice", content.DifficultyBeginner); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingCoalescer struct {
	inner   generation.Coalescer
	entered atomic.Int32
}

func (c *countingCoalescer) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	c.entered.Add(1)
	return c.inner.Do(ctx, key, fn)
}

func TestConcurrentGenerateIsCoalesced(t *testing.T) {
	release := make(chan struct{})
	gen := testsupport.NewFakeGenerator("primary").On(generation.TaskQuiz, func(generation.Request) (string, error) {
		<-release
		return quizJSON, nil
	})
	coalescer := &countingCoalescer{inner: generation.NewLocalCoalescer()}
	f := newFixture(t, gen, coalescer)

	const callers = 5
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			quiz, err := f.svc.Generate(context.Background(), f.item.ID, "alice", content.DifficultyIntermediate)
			errs[i] = err
			if quiz != nil {
				ids[i] = quiz.ID
			}
		}(i)
	}
	deadline := time.Now().Add(2 * time.Second)
	for coalescer.entered.Load() < callers && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls := gen.CallsFor(generation.TaskQuiz); calls != 1 {
		t.Fatalf("expected one generator call, got %d", calls)
	}
	for i := range ids {
		if errs[i] != nil || ids[i] != ids[0] {
			t.Fatalf("caller %d got %q / %v, want %q", i, ids[i], errs[i], ids[0])
		}
	}
	versions, _ := f.store.ListQuizVersions(context.Background(), f.item.ID, content.DifficultyIntermediate)
	if len(versions) != 1 {
		t.Fatalf("expected one stored version, got %d", len(versions))
	}
}

func difficultyOf(req generation.Request) string {
	for _, d := range content.Difficulties {
		if strings.Contains(req.Prompt, string(d)+"-level") {
			return string(d)
		}
	}
	return ""
}

func TestStageContinuesPastFailedDifficulty(t *testing.T) {
	gen := testsupport.NewFakeGenerator("primary").On(generation.TaskQuiz, func(req generation.Request) (string, error) {
		if difficultyOf(req) == "beginner" {
			return "not json", nil
		}
		return quizJSON, nil
	})
	f := newFixture(t, gen, nil)
	var delays []time.Duration
	st := quizzes.NewStage(f.svc, 3, time.Second, logging.NewNop(),
		quizzes.WithSleeper(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}))

	var msg string
	if err := st.Execute(context.Background(), f.item, func(_ int, m string) { msg = m }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected backoff %v", delays)
	}
	active, _ := f.store.ListActiveQuizzes(context.Background(), f.item.ID)
	if len(active) != 2 {
		t.Fatalf("expected two active quizzes, got %d", len(active))
	}
	if !strings.Contains(msg, "failed: beginner") {
		t.Fatalf("expected failure in final message, got %q", msg)
	}
}

func TestStageFailsWhenNoDifficultySucceeds(t *testing.T) {
	gen := testsupport.NewFakeGenerator("primary").Reply(generation.TaskQuiz, "nothing useful")
	f := newFixture(t, gen, nil)
	st := quizzes.NewStage(f.svc, 2, 0, logging.NewNop())
	if err := st.Execute(context.Background(), f.item, stage.NopProgress); err == nil {
		t.Fatal("expected error")
	}
	if calls := gen.CallsFor(generation.TaskQuiz); calls != 6 {
		t.Fatalf("expected 2 attempts for each of 3 difficulties, got %d", calls)
	}
}

func TestStageStopsOnTerminalQuota(t *testing.T) {
	gen := testsupport.NewFakeGenerator("primary").On(generation.TaskQuiz, func(generation.Request) (string, error) {
		return "", &generation.ProviderError{
			Generator: "primary", Kind: generation.KindFatal, StatusCode: 429,
			Quota: &generation.QuotaError{Generator: "primary", Scope: generation.ScopeDay, RecoveryAt: time.Now().Add(time.Hour)},
		}
	})
	f := newFixture(t, gen, nil)
	st := quizzes.NewStage(f.svc, 3, 0, logging.NewNop())
	err := st.Execute(context.Background(), f.item, stage.NopProgress)
	if !generation.IsTerminalQuota(err) {
		t.Fatalf("expected terminal quota, got %v", err)
	}
	if calls := gen.CallsFor(generation.TaskQuiz); calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
