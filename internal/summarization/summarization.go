package summarization

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
	"studyforge/internal/stage"
)

const (
	stageName       = content.StageSummarization
	maxPromptChars  = 24000
	complexAtChars  = 12000
	summaryMaxToken = 1200
)

// Invoker is the generation surface the stage needs.
type Invoker interface {
	generation.Caller
	Router() *generation.Router
}

// Summarizer produces summaries and key concepts.
type Summarizer struct {
	store   *content.Store
	invoker Invoker
	logger  *slog.Logger
}

// NewSummarizer builds the stage handler.
func NewSummarizer(store *content.Store, invoker Invoker, logger *slog.Logger) *Summarizer {
	return &Summarizer{store: store, invoker: invoker, logger: logging.NewComponentLogger(logger, "summarization")}
}

func (s *Summarizer) Name() content.StageName { return stageName }

// Prepare requires a stored transcript.
func (s *Summarizer) Prepare(ctx context.Context, item *content.Content) error {
	_, err := s.transcript(ctx, item.ID)
	return err
}

func (s *Summarizer) transcript(ctx context.Context, id string) (*content.Transcript, error) {
	tr, err := s.store.GetTranscript(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, string(stageName), "load transcript", "", err)
	}
	if tr == nil || strings.TrimSpace(tr.FullText) == "" {
		return nil, stage.MissingArtifact(stageName, "transcript", content.StageTranscription)
	}
	return tr, nil
}

// Execute generates and stores the summary and concepts.
func (s *Summarizer) Execute(ctx context.Context, item *content.Content, progress stage.Progress) error {
	logger := logging.WithContext(ctx, s.logger)
	tr, err := s.transcript(ctx, item.ID)
	if err != nil {
		return err
	}
	text := Excerpt(tr.FullText, maxPromptChars)
	complexity := generation.ComplexityModerate
	if len(tr.FullText) > complexAtChars {
		complexity = generation.ComplexityComplex
	}

	stage.Report(progress, 10, "summarizing")
	router := s.invoker.Router()
	req := generation.Request{
		Task:        generation.TaskSummarization,
		Complexity:  complexity,
		System:      summarySystemPrompt,
		Prompt:      fmt.Sprintf(summaryPromptTemplate, titleOf(item), text),
		Temperature: 0.3,
		MaxTokens:   summaryMaxToken,
	}
	result, err := s.invoker.Invoke(ctx, router.FallbackChain(req.Task, req.Complexity), req)
	if err != nil {
		return err
	}
	summaryText := strings.TrimSpace(result.Text)
	if summaryText == "" {
		return services.Wrap(services.ErrValidation, string(stageName), "generate summary",
			fmt.Sprintf("%s returned an empty summary", result.GeneratorUsed), nil)
	}

	stage.Report(progress, 60, "extracting key concepts")
	concepts, err := s.concepts(ctx, item, text)
	if err != nil {
		if generation.IsTerminalQuota(err) || errors.Is(err, context.Canceled) {
			return err
		}
		logging.WarnWithContext(logger, "concept extraction failed; storing summary without concepts", "concepts_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "resume from summarization to retry concept extraction"),
			logging.String(logging.FieldImpact, "the summary has no key concept list"),
		)
		concepts = nil
	}

	stage.Report(progress, 90, "storing summary")
	if err := s.store.SaveSummary(ctx, &content.Summary{
		ContentID:   item.ID,
		Text:        summaryText,
		Concepts:    concepts,
		GeneratedBy: result.GeneratorUsed,
	}); err != nil {
		return services.Wrap(services.ErrTransient, string(stageName), "save summary", "", err)
	}
	logger.Info("summary stored",
		logging.String(logging.FieldGenerator, result.GeneratorUsed),
		logging.Int("summary_chars", len(summaryText)),
		logging.Int("concepts", len(concepts)),
	)
	stage.Report(progress, 100, "summary ready")
	return nil
}

func (s *Summarizer) concepts(ctx context.Context, item *content.Content, text string) ([]content.Concept, error) {
	req := generation.Request{
		Task:        generation.TaskConcepts,
		Complexity:  generation.ComplexitySimple,
		System:      conceptSystemPrompt,
		Prompt:      fmt.Sprintf(conceptPromptTemplate, titleOf(item), text),
		Temperature: 0.2,
		MaxTokens:   800,
		JSON:        true,
	}
	chain := s.invoker.Router().FallbackChain(req.Task, req.Complexity)
	records, err := generation.GenerateRecords[content.Concept](ctx, s.invoker, chain, req, generation.RecordOptions{
		Key:    "concepts",
		Policy: recovery.AllowEmpty,
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records.Items))
	out := make([]content.Concept, 0, len(records.Items))
	for _, concept := range records.Items {
		concept.Term = strings.TrimSpace(concept.Term)
		concept.Definition = strings.TrimSpace(concept.Definition)
		key := strings.ToLower(concept.Term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, concept)
	}
	return out, nil
}

// HealthCheck reports readiness.
func (s *Summarizer) HealthCheck(context.Context) stage.Health {
	if s.invoker == nil {
		return stage.Unhealthy(string(stageName), "generation not configured")
	}
	return stage.Healthy(string(stageName))
}

// Excerpt truncates text to at most limit bytes on a word boundary.
func Excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexAny(cut, " \n"); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func titleOf(item *content.Content) string {
	if title := strings.TrimSpace(item.Title); title != "" {
		return title
	}
	return "Untitled material"
}

var _ stage.Handler = (*Summarizer)(nil)
