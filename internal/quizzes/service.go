package quizzes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"studyforge/internal/content"
	"studyforge/internal/generation"
	"studyforge/internal/logging"
	"studyforge/internal/recovery"
	"studyforge/internal/services"
	"studyforge/internal/summarization"
)

// RequesterPipeline is the requester the pipeline stage coalesces under.
const RequesterPipeline = "pipeline"

const (
	tokensPerQuestion = 160
	baseQuizTokens    = 400
)

// Options sizes generated quizzes.
type Options struct {
	QuestionCount       int
	ReducedScopeRetries int
	VersionsRetained    int
}

// Service generates and installs quiz versions.
type Service struct {
	store     *content.Store
	invoker   summarization.Invoker
	coalescer generation.Coalescer
	opts      Options
	logger    *slog.Logger
}

// NewService builds a quiz service. A nil coalescer gets an in-process one.
func NewService(store *content.Store, invoker summarization.Invoker, coalescer generation.Coalescer, opts Options, logger *slog.Logger) *Service {
	if coalescer == nil {
		coalescer = generation.NewLocalCoalescer()
	}
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = 1
	}
	return &Service{
		store:     store,
		invoker:   invoker,
		coalescer: coalescer,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "quizzes"),
	}
}

// Generate produces a new active quiz version for (contentID, difficulty).
// Concurrent calls sharing the coalescing key observe the same quiz.
func (s *Service) Generate(ctx context.Context, contentID, requester string, difficulty content.Difficulty) (*content.Quiz, error) {
	if _, ok := content.ParseDifficulty(string(difficulty)); !ok {
		return nil, services.Wrap(services.ErrValidation, "quizzes", "generate",
			fmt.Sprintf("unknown difficulty %q", difficulty), nil)
	}
	key := generation.CoalesceKey(contentID, requester, string(difficulty))
	value, shared, err := s.coalescer.Do(ctx, key, func(ctx context.Context) (any, error) {
		return s.generate(ctx, contentID, difficulty)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.WithContext(ctx, s.logger).Debug("quiz generation coalesced",
			logging.String("key", key),
		)
	}
	quiz, _ := value.(*content.Quiz)
	if quiz == nil {
		return nil, errors.New("quiz generation returned no quiz")
	}
	return quiz, nil
}

func (s *Service) generate(ctx context.Context, contentID string, difficulty content.Difficulty) (*content.Quiz, error) {
	ctx = services.WithContentID(ctx, contentID)
	logger := logging.WithContext(ctx, s.logger)

	item, err := s.store.GetByID(ctx, contentID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "quizzes", "load content", "", err)
	}
	if item == nil || item.Deleted {
		return nil, services.Wrap(services.ErrNotFound, "quizzes", "load content",
			fmt.Sprintf("content %s not found", contentID), nil)
	}
	summary, err := s.store.GetSummary(ctx, contentID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "quizzes", "load summary", "", err)
	}
	if summary == nil || strings.TrimSpace(summary.Text) == "" {
		return nil, services.Wrap(services.ErrValidation, "quizzes", "load summary",
			"summary missing; resume from summarization", nil)
	}

	complexity := generation.ComplexityModerate
	if difficulty == content.DifficultyAdvanced {
		complexity = generation.ComplexityComplex
	}
	build := func(count int) generation.Request {
		return generation.Request{
			Task:       generation.TaskQuiz,
			Complexity: complexity,
			System:     systemPrompt,
			Prompt: fmt.Sprintf(promptTemplate, difficulty, count, item.Title,
				difficultyGuidance[string(difficulty)], summary.Text, conceptList(summary.Concepts)),
			Temperature: 0.5,
			MaxTokens:   baseQuizTokens + count*tokensPerQuestion,
			JSON:        true,
		}
	}
	chain := s.invoker.Router().FallbackChain(generation.TaskQuiz, complexity)
	records, err := generation.GenerateWithReducedScope[content.Question](ctx, s.invoker, chain, build,
		generation.RecordOptions{Key: "questions", Policy: recovery.RequireRecords},
		generation.ScopeOptions{Requested: s.opts.QuestionCount, Retries: s.opts.ReducedScopeRetries},
	)
	if err != nil {
		return nil, err
	}

	questions, dropped := normalizeQuestions(records.Items)
	if len(questions) == 0 {
		return nil, services.Wrap(services.ErrValidation, "quizzes", "validate questions",
			fmt.Sprintf("no gradable questions among %d generated", len(records.Items)), nil)
	}
	if dropped > 0 || records.Invalid > 0 {
		logging.WarnWithContext(logger, "quiz questions dropped", "quiz_questions_dropped",
			logging.Int("dropped", dropped+records.Invalid),
			logging.String("difficulty", string(difficulty)),
			logging.String(logging.FieldErrorHint, "questions lacked a correct answer or failed validation"),
			logging.String(logging.FieldImpact, "the quiz is shorter than requested"),
		)
	}

	quiz, err := s.store.CreateQuizVersion(ctx, content.QuizDraft{
		ContentID:   contentID,
		Difficulty:  difficulty,
		Title:       quizTitle(item, difficulty),
		Questions:   questions,
		GeneratedBy: records.Result.GeneratorUsed,
	}, s.opts.VersionsRetained)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "quizzes", "save quiz", "", err)
	}
	logger.Info("quiz version installed",
		logging.EventType("quiz_version_created"),
		logging.String("difficulty", string(difficulty)),
		logging.Int("version", quiz.Version),
		logging.Int("questions", len(questions)),
		logging.String(logging.FieldGenerator, records.Result.GeneratorUsed),
	)
	return quiz, nil
}

// normalizeQuestions assigns ids, defaults points, and drops questions that
// cannot be graded.
func normalizeQuestions(in []content.Question) ([]content.Question, int) {
	out := make([]content.Question, 0, len(in))
	dropped := 0
	for _, q := range in {
		q.Prompt = strings.TrimSpace(q.Prompt)
		if q.Type != content.QuestionEssay && q.CorrectAnswer.IsZero() {
			dropped++
			continue
		}
		switch q.Type {
		case content.QuestionMultipleChoice, content.QuestionMultiSelect:
			if len(q.Options) < 2 {
				dropped++
				continue
			}
		case content.QuestionTrueFalse:
			if len(q.Options) == 0 {
				q.Options = []string{"True", "False"}
			}
		}
		if q.Type == content.QuestionMultiSelect && !q.CorrectAnswer.Multi {
			q.CorrectAnswer.Multi = true
		}
		if q.Points <= 0 {
			q.Points = 1
		}
		q.ID = fmt.Sprintf("q%d", len(out)+1)
		out = append(out, q)
	}
	return out, dropped
}

func quizTitle(item *content.Content, difficulty content.Difficulty) string {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = "Study material"
	}
	return fmt.Sprintf("%s (%s)", title, difficulty)
}

func conceptList(concepts []content.Concept) string {
	if len(concepts) == 0 {
		return "(none extracted)"
	}
	lines := make([]string, 0, len(concepts))
	for _, concept := range concepts {
		lines = append(lines, "- "+concept.Term+": "+concept.Definition)
	}
	return strings.Join(lines, "\n")
}
