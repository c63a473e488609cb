package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/services"
)

// AttemptService drives the quiz attempt lifecycle.
type AttemptService struct {
	store  *content.Store
	logger *slog.Logger
}

// NewAttemptService builds an attempt service.
func NewAttemptService(store *content.Store, logger *slog.Logger) *AttemptService {
	return &AttemptService{store: store, logger: logging.NewComponentLogger(logger, "scoring")}
}

// Start opens an in-progress attempt on an active quiz.
func (s *AttemptService) Start(ctx context.Context, quizID, userID string) (*content.QuizAttempt, error) {
	quiz, err := s.quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.IsActive {
		return nil, services.Wrap(services.ErrValidation, "scoring", "start attempt",
			fmt.Sprintf("quiz %s has been superseded", quizID), nil)
	}
	attempt, err := s.store.CreateAttempt(ctx, quiz, userID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scoring", "start attempt", "", err)
	}
	return attempt, nil
}

// Submit grades answers and completes the attempt.
func (s *AttemptService) Submit(ctx context.Context, attemptID string, answers []content.SubmittedAnswer, timeSpent time.Duration) (*content.QuizAttempt, Recommendation, error) {
	attempt, err := s.openAttempt(ctx, attemptID, "submit attempt")
	if err != nil {
		return nil, Recommendation{}, err
	}
	quiz, err := s.quiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, Recommendation{}, err
	}

	graded := Grade(quiz, answers)
	var avg time.Duration
	if n := len(quiz.Questions); n > 0 && timeSpent > 0 {
		avg = timeSpent / time.Duration(n)
	}
	rec := Recommend(graded.Percentage, avg, quiz.Difficulty)

	attempt.Status = content.AttemptCompleted
	attempt.Answers = graded.Answers
	attempt.Score = graded.Score
	attempt.MaxScore = graded.MaxScore
	attempt.Percentage = graded.Percentage
	attempt.TimeSpent = timeSpent
	attempt.Performance = graded.Performance
	attempt.RecommendedDifficulty = rec.Difficulty
	if err := s.close(ctx, attempt, "submit attempt"); err != nil {
		return nil, Recommendation{}, err
	}
	logging.WithContext(services.WithContentID(ctx, attempt.ContentID), s.logger).Info("quiz attempt graded",
		logging.EventType("attempt_completed"),
		logging.String("attempt_id", attempt.ID),
		logging.Float64("percentage", graded.Percentage),
		logging.String("recommended", string(rec.Difficulty)),
		logging.Bool("borderline", rec.Borderline),
	)
	return attempt, rec, nil
}

// Abandon closes an in-progress attempt without grading.
func (s *AttemptService) Abandon(ctx context.Context, attemptID string) (*content.QuizAttempt, error) {
	attempt, err := s.openAttempt(ctx, attemptID, "abandon attempt")
	if err != nil {
		return nil, err
	}
	attempt.Status = content.AttemptAbandoned
	if err := s.close(ctx, attempt, "abandon attempt"); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *AttemptService) openAttempt(ctx context.Context, id, op string) (*content.QuizAttempt, error) {
	attempt, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scoring", op, "", err)
	}
	if attempt == nil {
		return nil, services.Wrap(services.ErrNotFound, "scoring", op, fmt.Sprintf("attempt %s not found", id), nil)
	}
	if attempt.IsTerminal() {
		return nil, services.Wrap(services.ErrValidation, "scoring", op,
			fmt.Sprintf("attempt %s is already %s", id, attempt.Status), content.ErrAttemptClosed)
	}
	return attempt, nil
}

func (s *AttemptService) close(ctx context.Context, attempt *content.QuizAttempt, op string) error {
	err := s.store.CloseAttempt(ctx, attempt)
	if errors.Is(err, content.ErrAttemptClosed) {
		return services.Wrap(services.ErrValidation, "scoring", op, "attempt closed concurrently", err)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "scoring", op, "", err)
	}
	return nil
}

func (s *AttemptService) quiz(ctx context.Context, id string) (*content.Quiz, error) {
	quiz, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scoring", "load quiz", "", err)
	}
	if quiz == nil {
		return nil, services.Wrap(services.ErrNotFound, "scoring", "load quiz", fmt.Sprintf("quiz %s not found", id), nil)
	}
	return quiz, nil
}
