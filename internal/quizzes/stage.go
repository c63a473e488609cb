package quizzes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/services"
	"studyforge/internal/stage"
)

// Stage runs quiz generation for every difficulty. It succeeds when at least
// one difficulty installed a new quiz version.
type Stage struct {
	service   *Service
	attempts  int
	baseDelay time.Duration
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger
}

// StageOption customizes a Stage.
type StageOption func(*Stage)

// WithSleeper replaces the backoff wait between attempts.
func WithSleeper(sleep func(context.Context, time.Duration) error) StageOption {
	return func(s *Stage) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewStage wraps service as the pipeline stage handler.
func NewStage(service *Service, attemptsPerDifficulty int, baseDelay time.Duration, logger *slog.Logger, opts ...StageOption) *Stage {
	if attemptsPerDifficulty <= 0 {
		attemptsPerDifficulty = 1
	}
	s := &Stage{
		service:   service,
		attempts:  attemptsPerDifficulty,
		baseDelay: baseDelay,
		sleep:     sleepContext,
		logger:    logging.NewComponentLogger(logger, "quiz_stage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stage) Name() content.StageName { return content.StageQuizGeneration }

// Prepare requires a summary.
func (s *Stage) Prepare(ctx context.Context, item *content.Content) error {
	summary, err := s.service.store.GetSummary(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, string(content.StageQuizGeneration), "load summary", "", err)
	}
	if summary == nil {
		return stage.MissingArtifact(content.StageQuizGeneration, "summary", content.StageSummarization)
	}
	return nil
}

// Execute generates one quiz per difficulty. A terminal quota error or
// cancellation stops the stage immediately; other failures move on to the
// next difficulty.
func (s *Stage) Execute(ctx context.Context, item *content.Content, progress stage.Progress) error {
	logger := logging.WithContext(ctx, s.logger)
	total := len(content.Difficulties)
	var (
		produced []string
		failures []string
		lastErr  error
	)
	for i, difficulty := range content.Difficulties {
		stage.Report(progress, stage.Scaled(0, 100, i, total), fmt.Sprintf("generating %s quiz", difficulty))
		quiz, err := s.generateWithRetry(ctx, item.ID, difficulty)
		if err != nil {
			if generation.IsTerminalQuota(err) || ctx.Err() != nil {
				return err
			}
			lastErr = err
			failures = append(failures, string(difficulty))
			logging.WarnWithContext(logger, "quiz generation exhausted for difficulty", "quiz_difficulty_failed",
				logging.String("difficulty", string(difficulty)),
				logging.Int("attempts", s.attempts),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "regenerate this difficulty on demand later"),
				logging.String(logging.FieldImpact, "no new quiz for this difficulty"),
			)
			continue
		}
		produced = append(produced, fmt.Sprintf("%s v%d", difficulty, quiz.Version))
	}
	if len(produced) == 0 {
		return fmt.Errorf("no quiz generated for any difficulty: %w", lastErr)
	}
	msg := "quizzes ready: " + strings.Join(produced, ", ")
	if len(failures) > 0 {
		msg += " (failed: " + strings.Join(failures, ", ") + ")"
	}
	stage.Report(progress, 100, msg)
	return nil
}

func (s *Stage) generateWithRetry(ctx context.Context, contentID string, difficulty content.Difficulty) (*content.Quiz, error) {
	logger := logging.WithContext(ctx, s.logger)
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		quiz, err := s.service.Generate(ctx, contentID, RequesterPipeline, difficulty)
		if err == nil {
			return quiz, nil
		}
		lastErr = err
		if generation.IsTerminalQuota(err) || errors.Is(err, services.ErrNotFound) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == s.attempts {
			break
		}
		delay := s.baseDelay * time.Duration(1<<(attempt-1))
		logger.Debug("retrying quiz generation",
			logging.String("difficulty", string(difficulty)),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// HealthCheck reports readiness.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.service == nil || s.service.invoker == nil {
		return stage.Unhealthy(string(content.StageQuizGeneration), "generation not configured")
	}
	return stage.Healthy(string(content.StageQuizGeneration))
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ stage.Handler = (*Stage)(nil)
