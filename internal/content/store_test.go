package content_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/testsupport"
)

func TestCreateAndGetContent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewContent(t, store, "alice", "/tmp/notes.txt")
	if item.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if item.Status != content.StatusPending {
		t.Fatalf("expected pending, got %q", item.Status)
	}
	for _, name := range content.StageOrder {
		if rec := item.Stages.Get(name); rec.Status != content.StagePending {
			t.Fatalf("stage %s expected pending, got %q", name, rec.Status)
		}
	}

	missing, err := store.GetByID(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing item, got %#v", missing)
	}
}

func TestUpdatePersistsPauseInfo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewContent(t, store, "alice", "")
	recovery := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	item.Status = content.StatusPaused
	item.Stages.Transcription.Status = content.StageCompleted
	item.Stages.Vectorization.Status = content.StagePaused
	item.Pause = content.PauseInfo{Reason: "daily quota", RecoveryAt: &recovery, Suggestion: "wait"}
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != content.StatusPaused || fetched.Stages.Vectorization.Status != content.StagePaused {
		t.Fatalf("unexpected persisted state: %#v", fetched)
	}
	if fetched.Pause.RecoveryAt == nil || !fetched.Pause.RecoveryAt.Equal(recovery) {
		t.Fatalf("unexpected recovery time: %v", fetched.Pause.RecoveryAt)
	}

	ready, err := store.ListResumable(ctx, time.Now())
	if err != nil {
		t.Fatalf("ListResumable: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected nothing resumable before recovery time, got %d", len(ready))
	}
	ready, err = store.ListResumable(ctx, recovery.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListResumable: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != item.ID {
		t.Fatalf("expected item resumable after recovery time, got %#v", ready)
	}
}

func TestReclaimInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewContent(t, store, "alice", "")
	now := time.Now().UTC()
	item.Status = content.StatusProcessing
	item.Stages.Transcription = content.StageRecord{Status: content.StageCompleted, Progress: 100, CompletedAt: &now}
	item.Stages.Vectorization = content.StageRecord{Status: content.StageProcessing, Progress: 30, StartedAt: &now}
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ids, err := store.ReclaimInterrupted(ctx)
	if err != nil {
		t.Fatalf("ReclaimInterrupted: %v", err)
	}
	if len(ids) != 1 || ids[0] != item.ID {
		t.Fatalf("unexpected reclaimed ids: %v", ids)
	}
	fetched, _ := store.GetByID(ctx, item.ID)
	if fetched.Status != content.StatusPending {
		t.Fatalf("expected pending after reclaim, got %q", fetched.Status)
	}
	if fetched.Stages.Transcription.Status != content.StageCompleted {
		t.Fatal("expected completed stage to be preserved")
	}
	if fetched.Stages.Vectorization.Status != content.StagePending || fetched.Stages.Vectorization.Progress != 0 {
		t.Fatalf("expected interrupted stage reset, got %#v", fetched.Stages.Vectorization)
	}
}

func TestSoftDeleteFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewContent(t, store, "alice", "")
	deletedAt := time.Now().Add(-31 * 24 * time.Hour)
	if err := store.MarkDeleted(ctx, item.ID, deletedAt); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}
	runnable, err := store.ListRunnable(ctx)
	if err != nil {
		t.Fatalf("ListRunnable: %v", err)
	}
	if len(runnable) != 0 {
		t.Fatal("expected soft-deleted item to be excluded from the pipeline")
	}
	expired, err := store.ListSoftDeletedBefore(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("ListSoftDeletedBefore: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected one expired item, got %d", len(expired))
	}
	if err := store.ClearDeleted(ctx, item.ID); err != nil {
		t.Fatalf("ClearDeleted: %v", err)
	}
	fetched, _ := store.GetByID(ctx, item.ID)
	if fetched.Deleted || fetched.DeletedAt != nil {
		t.Fatalf("expected restore to clear flags, got %#v", fetched)
	}
}

func TestSetBlobKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewContent(t, store, "alice", "")
	if err := store.SetBlobKey(ctx, item.ID, "content/"+item.ID+"/notes.srt"); err != nil {
		t.Fatalf("SetBlobKey: %v", err)
	}
	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.BlobKey != "content/"+item.ID+"/notes.srt" {
		t.Fatalf("unexpected blob key %q", fetched.BlobKey)
	}
	if err := store.SetBlobKey(ctx, "missing", "x"); err == nil {
		t.Fatal("expected error for unknown content")
	}
}

func TestReviewLogIsAppendOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewContent(t, store, "alice", "")
	cards, err := store.ReplaceFlashcards(ctx, item.ID, []content.Flashcard{{Front: "f", Back: "b", Difficulty: "easy"}})
	if err != nil {
		t.Fatalf("ReplaceFlashcards: %v", err)
	}
	review := &content.FlashcardReview{FlashcardID: cards[0].ID, ContentID: item.ID, Quality: 4, Correct: true, EaseFactor: 2.5, IntervalDays: 1}
	if err := store.AppendReview(ctx, review); err != nil {
		t.Fatalf("AppendReview: %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, `UPDATE flashcard_reviews SET quality = 0 WHERE id = ?`, review.ID); err == nil {
		t.Fatal("expected update of review log to be rejected")
	}
	reviews, err := store.ListReviews(ctx, cards[0].ID)
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Quality != 4 {
		t.Fatalf("unexpected reviews: %#v", reviews)
	}

	// Regeneration keeps reviewed cards.
	if _, err := store.ReplaceFlashcards(ctx, item.ID, []content.Flashcard{{Front: "f2", Back: "b2", Difficulty: "easy"}}); err != nil {
		t.Fatalf("ReplaceFlashcards again: %v", err)
	}
	all, _ := store.ListFlashcards(ctx, item.ID)
	if len(all) != 2 {
		t.Fatalf("expected reviewed card to survive regeneration, got %d cards", len(all))
	}
}

func TestQuizVersioningKeepsSingleActive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	item := testsupport.NewContent(t, store, "alice", "")

	draft := content.QuizDraft{
		ContentID:  item.ID,
		Difficulty: content.DifficultyBeginner,
		Questions:  []content.Question{{Type: content.QuestionShortAnswer, Prompt: "?", CorrectAnswer: content.SingleAnswer("x"), Points: 1}},
	}
	var last *content.Quiz
	var first *content.Quiz
	for i := 0; i < 5; i++ {
		quiz, err := store.CreateQuizVersion(ctx, draft, 2)
		if err != nil {
			t.Fatalf("CreateQuizVersion %d: %v", i, err)
		}
		if quiz.Version != i+1 {
			t.Fatalf("expected version %d, got %d", i+1, quiz.Version)
		}
		if last != nil && quiz.PreviousVersionID != last.ID {
			t.Fatalf("expected link to previous version %s, got %s", last.ID, quiz.PreviousVersionID)
		}
		if i == 0 {
			first = quiz
			if _, err := store.CreateAttempt(ctx, quiz, "alice"); err != nil {
				t.Fatalf("CreateAttempt: %v", err)
			}
		}
		last = quiz
	}

	active, err := store.ActiveQuiz(ctx, item.ID, content.DifficultyBeginner)
	if err != nil {
		t.Fatalf("ActiveQuiz: %v", err)
	}
	if active == nil || active.ID != last.ID {
		t.Fatalf("expected latest version active, got %#v", active)
	}
	versions, err := store.ListQuizVersions(ctx, item.ID, content.DifficultyBeginner)
	if err != nil {
		t.Fatalf("ListQuizVersions: %v", err)
	}
	// active v5, retained v4 and v3, v1 kept for its attempt, v2 pruned.
	got := map[int]bool{}
	activeCount := 0
	for _, v := range versions {
		got[v.Version] = true
		if v.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active version, got %d", activeCount)
	}
	for _, want := range []int{1, 3, 4, 5} {
		if !got[want] {
			t.Fatalf("expected version %d retained, got %v", want, got)
		}
	}
	if got[2] {
		t.Fatal("expected version 2 to be pruned")
	}
	v3, _ := store.GetQuiz(ctx, versions[2].ID)
	if v3.Version != 3 || v3.PreviousVersionID != "" {
		t.Fatalf("expected v3 link to pruned v2 cleared, got %#v", v3)
	}
	if f, _ := store.GetQuiz(ctx, first.ID); f == nil {
		t.Fatal("expected attempted version to survive pruning")
	}
}

func TestCloseAttemptIsTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	item := testsupport.NewContent(t, store, "alice", "")
	quiz, err := store.CreateQuizVersion(ctx, content.QuizDraft{ContentID: item.ID, Difficulty: content.DifficultyAdvanced}, 1)
	if err != nil {
		t.Fatalf("CreateQuizVersion: %v", err)
	}
	attempt, err := store.CreateAttempt(ctx, quiz, "alice")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	attempt.Status = content.AttemptCompleted
	attempt.Score = 3
	if err := store.CloseAttempt(ctx, attempt); err != nil {
		t.Fatalf("CloseAttempt: %v", err)
	}
	attempt.Status = content.AttemptAbandoned
	if err := store.CloseAttempt(ctx, attempt); !errors.Is(err, content.ErrAttemptClosed) {
		t.Fatalf("expected ErrAttemptClosed, got %v", err)
	}
	fetched, _ := store.GetAttempt(ctx, attempt.ID)
	if fetched.Status != content.AttemptCompleted || fetched.Score != 3 {
		t.Fatalf("expected completed attempt preserved, got %#v", fetched)
	}
}

func TestDeleteCascadeRemovesDependents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	item := testsupport.NewContent(t, store, "alice", "")

	if err := store.SaveTranscript(ctx, &content.Transcript{ContentID: item.ID, FullText: "text"}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if err := store.SaveSummary(ctx, &content.Summary{ContentID: item.ID, Text: "s", Concepts: []content.Concept{{Term: "t", Definition: "d"}}}); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	cards, _ := store.ReplaceFlashcards(ctx, item.ID, []content.Flashcard{{Front: "f", Back: "b"}})
	_ = store.AppendReview(ctx, &content.FlashcardReview{FlashcardID: cards[0].ID, ContentID: item.ID, Quality: 3})
	quiz, _ := store.CreateQuizVersion(ctx, content.QuizDraft{ContentID: item.ID, Difficulty: content.DifficultyBeginner}, 3)
	_, _ = store.CreateQuizVersion(ctx, content.QuizDraft{ContentID: item.ID, Difficulty: content.DifficultyBeginner}, 3)
	_, _ = store.CreateAttempt(ctx, quiz, "alice")
	session, err := store.EnsureChatSession(ctx, "", item.ID, "alice")
	if err != nil {
		t.Fatalf("EnsureChatSession: %v", err)
	}
	if err := store.AppendQAEntry(ctx, &content.QAEntry{SessionID: session.ID, ContentID: item.ID, Question: "q", Answer: "a"}); err != nil {
		t.Fatalf("AppendQAEntry: %v", err)
	}

	result, err := store.DeleteCascade(ctx, item.ID)
	if err != nil {
		t.Fatalf("DeleteCascade: %v", err)
	}
	wantRows := map[string]int64{
		"quiz_attempts": 1, "quizzes": 2, "flashcard_reviews": 1, "flashcards": 1,
		"transcripts": 1, "summaries": 1, "concepts": 1, "qa_entries": 1, "chat_sessions": 1, "contents": 1,
	}
	for table, want := range wantRows {
		if result.Rows[table] != want {
			t.Fatalf("table %s: expected %d rows removed, got %d", table, want, result.Rows[table])
		}
	}
	if gone, _ := store.GetByID(ctx, item.ID); gone != nil {
		t.Fatal("expected content row removed")
	}

	again, err := store.DeleteCascade(ctx, item.ID)
	if err != nil {
		t.Fatalf("second DeleteCascade: %v", err)
	}
	if again.Total() != 0 {
		t.Fatalf("expected idempotent cascade, removed %d rows", again.Total())
	}
}

func TestSagaLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	saga, err := store.CreateSaga(ctx, "content-1", "alice")
	if err != nil {
		t.Fatalf("CreateSaga: %v", err)
	}
	saga.Phase = content.PhaseVectorsDeleted
	saga.Status = content.SagaInconsistent
	saga.LastError = "tx failed"
	if err := store.UpdateSaga(ctx, saga); err != nil {
		t.Fatalf("UpdateSaga: %v", err)
	}
	list, err := store.ListSagas(ctx, content.SagaFilter{Statuses: []content.SagaStatus{content.SagaInconsistent}})
	if err != nil {
		t.Fatalf("ListSagas: %v", err)
	}
	if len(list) != 1 || list[0].Phase != content.PhaseVectorsDeleted || list[0].LastError != "tx failed" {
		t.Fatalf("unexpected sagas: %#v", list)
	}
	stale, err := store.ListSagas(ctx, content.SagaFilter{UpdatedBefore: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("ListSagas stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale sagas, got %d", len(stale))
	}
}
