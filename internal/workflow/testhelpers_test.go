package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"studyforge/internal/config"
	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
	"studyforge/internal/stage"
	"studyforge/internal/testsupport"
	"studyforge/internal/workflow"
)

type stubStage struct {
	name        content.StageName
	prepareErr  error
	executeErr  func(calls int) error
	executeHook func(ctx context.Context, item *content.Content, progress stage.Progress)
	health      stage.Health

	mu       sync.Mutex
	prepares int
	executes int
}

func newStubStage(name content.StageName) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(string(name))}
}

func (s *stubStage) failWith(err error) *stubStage {
	s.executeErr = func(int) error { return err }
	return s
}

func (s *stubStage) Name() content.StageName { return s.name }

func (s *stubStage) Prepare(context.Context, *content.Content) error {
	s.mu.Lock()
	s.prepares++
	s.mu.Unlock()
	return s.prepareErr
}

func (s *stubStage) Execute(ctx context.Context, item *content.Content, progress stage.Progress) error {
	s.mu.Lock()
	s.executes++
	calls := s.executes
	hook, errFn := s.executeHook, s.executeErr
	s.mu.Unlock()
	if hook != nil {
		hook(ctx, item, progress)
	}
	if errFn != nil {
		return errFn(calls)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health { return s.health }

func (s *stubStage) Executes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executes
}

type harness struct {
	cfg      *config.Config
	store    *content.Store
	mgr      *workflow.Manager
	recorder *notifications.Recorder
	stages   map[content.StageName]*stubStage
}

func newHarness(t *testing.T, opts ...func(*config.Config)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	for _, opt := range opts {
		opt(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	recorder := &notifications.Recorder{}
	mgr := workflow.NewManager(cfg, store, logging.NewNop(), recorder, workflow.WithPollInterval(10*time.Millisecond))
	h := &harness{cfg: cfg, store: store, mgr: mgr, recorder: recorder, stages: make(map[content.StageName]*stubStage)}
	for _, name := range content.StageOrder {
		h.stages[name] = newStubStage(name)
	}
	h.configure()
	return h
}

func (h *harness) configure() {
	h.mgr.ConfigureStages(workflow.StageSet{
		Transcription: h.stages[content.StageTranscription],
		Vectorization: h.stages[content.StageVectorization],
		Summarization: h.stages[content.StageSummarization],
		Flashcards:    h.stages[content.StageFlashcardGeneration],
		Quizzes:       h.stages[content.StageQuizGeneration],
	})
}

func (h *harness) get(t *testing.T, id string) *content.Content {
	t.Helper()
	item, err := h.store.GetByID(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("GetByID(%s): %v %v", id, item, err)
	}
	return item
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}
