package srs_test

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/srs"
	"studyforge/internal/testsupport"
)

var reviewTime = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func TestSchedule(t *testing.T) {
	tests := []struct {
		name         string
		quality      int
		state        content.SpacedRepetition
		wantReps     int
		wantInterval int
		wantEase     float64
	}{
		{"first success", 4, content.SpacedRepetition{EaseFactor: 2.5}, 1, 1, 2.5},
		{"second success", 5, content.SpacedRepetition{Repetitions: 1, IntervalDays: 1, EaseFactor: 2.5}, 2, 6, 2.6},
		{"third success multiplies", 3, content.SpacedRepetition{Repetitions: 2, IntervalDays: 6, EaseFactor: 2.5}, 3, 15, 2.36},
		{"failure resets", 2, content.SpacedRepetition{Repetitions: 4, IntervalDays: 30, EaseFactor: 2.5}, 0, 1, 2.18},
		{"ease floor", 0, content.SpacedRepetition{Repetitions: 1, IntervalDays: 1, EaseFactor: 1.35}, 0, 1, 1.3},
		{"zero ease uses default", 4, content.SpacedRepetition{}, 1, 1, 2.5},
		{"perfect first review raises ease", 5, content.SpacedRepetition{IntervalDays: 1, EaseFactor: 2.5}, 1, 1, 2.6},
		{"lapse after streak", 2, content.SpacedRepetition{Repetitions: 3, IntervalDays: 10, EaseFactor: 2.0}, 0, 1, 1.68},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := srs.Schedule(tt.quality, tt.state, reviewTime)
			if err != nil {
				t.Fatalf("Schedule: %v", err)
			}
			if got.Repetitions != tt.wantReps || got.IntervalDays != tt.wantInterval {
				t.Fatalf("got reps=%d interval=%d, want %d/%d", got.Repetitions, got.IntervalDays, tt.wantReps, tt.wantInterval)
			}
			if math.Abs(got.EaseFactor-tt.wantEase) > 1e-9 {
				t.Fatalf("ease %v, want %v", got.EaseFactor, tt.wantEase)
			}
			wantDue := time.Date(2026, 3, 10+tt.wantInterval, 0, 0, 0, 0, time.UTC)
			if got.NextReviewDate == nil || !got.NextReviewDate.Equal(wantDue) {
				t.Fatalf("next review %v, want %v", got.NextReviewDate, wantDue)
			}
			if got.LastReviewDate == nil || !got.LastReviewDate.Equal(reviewTime) {
				t.Fatalf("last review %v", got.LastReviewDate)
			}
		})
	}
}

func TestScheduleSuccessfulSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for seq := 0; seq < 200; seq++ {
		state := content.SpacedRepetition{EaseFactor: 2.5}
		when := reviewTime
		for step := 0; step < 12; step++ {
			quality := 3 + rng.IntN(3)
			next, err := srs.Schedule(quality, state, when)
			if err != nil {
				t.Fatalf("Schedule: %v", err)
			}
			if next.IntervalDays < state.IntervalDays {
				t.Fatalf("sequence %d step %d: interval dropped %d -> %d", seq, step, state.IntervalDays, next.IntervalDays)
			}
			if next.EaseFactor < 1.3 {
				t.Fatalf("sequence %d step %d: ease %v below floor", seq, step, next.EaseFactor)
			}
			state = next
			when = *next.NextReviewDate
		}
	}
}

func TestScheduleRejectsQuality(t *testing.T) {
	for _, q := range []int{-1, 6} {
		if _, err := srs.Schedule(q, content.SpacedRepetition{}, reviewTime); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("quality %d: expected validation error, got %v", q, err)
		}
	}
}

type failingLog struct {
	*content.Store
}

func (failingLog) AppendReview(context.Context, *content.FlashcardReview) error {
	return errors.New("disk full")
}

func seedCard(t *testing.T) (*content.Store, *content.Flashcard) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewContent(t, store, "alice", "")
	cards, err := store.ReplaceFlashcards(context.Background(), item.ID, []content.Flashcard{{Front: "ATP?", Back: "Energy currency"}})
	if err != nil {
		t.Fatalf("ReplaceFlashcards: %v", err)
	}
	return store, &cards[0]
}

func TestReviewUpdatesCardAndLog(t *testing.T) {
	store, card := seedCard(t)
	svc := srs.NewService(store, logging.NewNop())
	ctx := context.Background()

	if _, err := svc.Review(ctx, card.ID, 5, 2*time.Second); err != nil {
		t.Fatalf("Review: %v", err)
	}
	updated, err := svc.Review(ctx, card.ID, 1, 4*time.Second)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	stats := updated.Statistics
	if stats.TimesReviewed != 2 || stats.TimesCorrect != 1 || stats.TimesIncorrect != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AverageResponseTime != 3*time.Second {
		t.Fatalf("expected 3s average, got %v", stats.AverageResponseTime)
	}
	reviews, err := store.ListReviews(ctx, card.ID)
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(reviews) != 2 || !reviews[0].Correct || reviews[1].Correct || reviews[1].IntervalDays != 1 {
		t.Fatalf("unexpected review log %+v", reviews)
	}
	stored, _ := store.GetFlashcard(ctx, card.ID)
	if stored.SpacedRepetition.Repetitions != 0 || stored.Statistics.TimesReviewed != 2 {
		t.Fatalf("card state not persisted: %+v", stored)
	}
}

func TestReviewSurvivesLogFailure(t *testing.T) {
	store, card := seedCard(t)
	svc := srs.NewService(failingLog{store}, logging.NewNop())

	if _, err := svc.Review(context.Background(), card.ID, 4, time.Second); err != nil {
		t.Fatalf("Review: %v", err)
	}
	stored, _ := store.GetFlashcard(context.Background(), card.ID)
	if stored.Statistics.TimesReviewed != 1 {
		t.Fatal("expected the review to persist despite the log failure")
	}
	if reviews, _ := store.ListReviews(context.Background(), card.ID); len(reviews) != 0 {
		t.Fatalf("expected no log entries, got %d", len(reviews))
	}
}

func TestReviewUnknownCard(t *testing.T) {
	store, _ := seedCard(t)
	svc := srs.NewService(store, logging.NewNop())
	if _, err := svc.Review(context.Background(), "missing", 3, 0); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDueListsNewCards(t *testing.T) {
	store, card := seedCard(t)
	svc := srs.NewService(store, logging.NewNop())
	ctx := context.Background()

	due, err := svc.Due(ctx, card.ContentID, time.Now())
	if err != nil || len(due) != 1 {
		t.Fatalf("expected the new card due, got %d %v", len(due), err)
	}
	if _, err := svc.Review(ctx, card.ID, 5, time.Second); err != nil {
		t.Fatalf("Review: %v", err)
	}
	if due, _ := svc.Due(ctx, card.ContentID, time.Now()); len(due) != 0 {
		t.Fatalf("expected nothing due right after review, got %d", len(due))
	}
	if due, _ := svc.Due(ctx, card.ContentID, time.Now().Add(48*time.Hour)); len(due) != 1 {
		t.Fatal("expected the card due after its interval")
	}
}
