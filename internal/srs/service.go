package srs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/services"
)

// CardStore is the persistence surface the scheduler needs.
type CardStore interface {
	GetFlashcard(ctx context.Context, id string) (*content.Flashcard, error)
	UpdateFlashcardReviewState(ctx context.Context, card *content.Flashcard) error
	AppendReview(ctx context.Context, review *content.FlashcardReview) error
	ListDueFlashcards(ctx context.Context, contentID string, now time.Time) ([]*content.Flashcard, error)
}

// Service records reviews for stored cards.
type Service struct {
	store  CardStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a review service.
func NewService(store CardStore, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logging.NewComponentLogger(logger, "srs"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Review schedules the card, updates its statistics and persists it. The
// review log entry is appended afterwards; a log failure is reported but does
// not fail the review.
func (s *Service) Review(ctx context.Context, cardID string, quality int, responseTime time.Duration) (*content.Flashcard, error) {
	card, err := s.store.GetFlashcard(ctx, cardID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "srs", "load flashcard", "", err)
	}
	if card == nil {
		return nil, services.Wrap(services.ErrNotFound, "srs", "load flashcard",
			fmt.Sprintf("flashcard %s not found", cardID), nil)
	}
	if responseTime < 0 {
		responseTime = 0
	}
	now := s.now()
	next, err := Schedule(quality, card.SpacedRepetition, now)
	if err != nil {
		return nil, err
	}
	card.SpacedRepetition = next

	correct := quality >= PassingQuality
	stats := &card.Statistics
	stats.AverageResponseTime = runningAverage(stats.AverageResponseTime, stats.TimesReviewed, responseTime)
	stats.TimesReviewed++
	if correct {
		stats.TimesCorrect++
	} else {
		stats.TimesIncorrect++
	}

	if err := s.store.UpdateFlashcardReviewState(ctx, card); err != nil {
		return nil, services.Wrap(services.ErrTransient, "srs", "save flashcard", "", err)
	}

	review := &content.FlashcardReview{
		FlashcardID:  card.ID,
		ContentID:    card.ContentID,
		Quality:      quality,
		ResponseTime: responseTime,
		Correct:      correct,
		EaseFactor:   next.EaseFactor,
		IntervalDays: next.IntervalDays,
		ReviewedAt:   now,
	}
	if err := s.store.AppendReview(ctx, review); err != nil {
		logging.WarnWithContext(logging.WithContext(services.WithContentID(ctx, card.ContentID), s.logger),
			"review log append failed", "review_log_failed",
			logging.String("flashcard_id", card.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check content database access"),
			logging.String(logging.FieldImpact, "review history is missing this entry; scheduling is unaffected"),
		)
	}
	return card, nil
}

// Due lists cards of contentID that are new or due at now.
func (s *Service) Due(ctx context.Context, contentID string, now time.Time) ([]*content.Flashcard, error) {
	cards, err := s.store.ListDueFlashcards(ctx, contentID, now)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "srs", "list due", "", err)
	}
	return cards, nil
}

func runningAverage(avg time.Duration, n int, sample time.Duration) time.Duration {
	if n <= 0 {
		return sample
	}
	return time.Duration((int64(avg)*int64(n) + int64(sample)) / int64(n+1))
}
